package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"seald/api/clients/evidence"
	"seald/internal/domain"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

const requestTimeout = 30 * time.Second

func newClient(baseURL string) *evidence.Client {
	principal := evidence.Principal{
		Subject:  os.Getenv("SEALD_SUBJECT"),
		TenantID: os.Getenv("SEALD_TENANT"),
	}
	if roles := strings.TrimSpace(os.Getenv("SEALD_ROLES")); roles != "" {
		principal.Roles = strings.Split(roles, ",")
	}
	return evidence.NewClient(baseURL, evidence.WithPrincipal(principal))
}

func serverURL() string {
	if v := os.Getenv("SEALD_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func remoteSimulate(decl domain.Declaration, files []domain.FileMeta) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	metas := make([]evidence.FileMeta, 0, len(files))
	for _, f := range files {
		metas = append(metas, evidence.FileMeta{FileName: f.FileName, SizeBytes: f.SizeBytes, ContentType: f.ContentType})
	}
	raw, err := newClient(serverURL()).Simulate(ctx, decl, metas)
	if err != nil {
		return nil, describe(err)
	}
	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return raw, nil
	}
	return json.MarshalIndent(pretty, "", "  ")
}

func runDraftCreate(args []string) error {
	fs := pflag.NewFlagSet("draft create", pflag.ContinueOnError)
	declPath := fs.String("declaration", "", "declaration JSON file")
	statePath := fs.String("state", defaultStatePath(), "local draft state file")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *declPath == "" {
		return &exitError{code: 1, err: errors.New("--declaration is required")}
	}
	raw, err := os.ReadFile(*declPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	baseURL := serverURL()
	draft, err := newClient(baseURL).CreateDraft(ctx, json.RawMessage(raw))
	if err != nil {
		return describe(err)
	}
	for _, n := range draft.Notices {
		color.Yellow("notice: %s: %s", n.Field, n.Error)
	}
	if err := saveState(*statePath, draftState{BaseURL: baseURL, DraftID: draft.DraftID, UpdatedAt: time.Now().UTC()}); err != nil {
		return err
	}
	if draft.Changed {
		color.Green("created draft %s (%s)", draft.DraftID, draft.IngestionMethod)
	} else {
		color.Cyan("reusing draft %s created moments ago with the same declaration", draft.DraftID)
	}
	return nil
}

func runDraftAttach(args []string) error {
	fs := pflag.NewFlagSet("draft attach", pflag.ContinueOnError)
	file := fs.String("file", "", "file to upload")
	text := fs.String("text", "", "pasted text payload")
	document := fs.String("document", "", "manual entry JSON document")
	manifest := fs.String("manifest", "", "API manifest JSON")
	externalRef := fs.String("external-ref", "", "external reference for reference-first methods")
	digest := fs.String("sha256", "", "declared payload digest")
	statePath := fs.String("state", defaultStatePath(), "local draft state file")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	st, err := loadState(*statePath)
	if err != nil {
		return err
	}
	in := evidence.AttachInput{PayloadDigestSHA256: *digest, ExternalRef: *externalRef}
	if *file != "" {
		content, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		meta, err := fileMeta(*file)
		if err != nil {
			return err
		}
		in.Content = content
		in.FileName = meta.FileName
		in.ContentType = meta.ContentType
	}
	if fs.Changed("text") {
		in.Text = text
	}
	if *document != "" {
		if in.Document, err = os.ReadFile(*document); err != nil {
			return err
		}
	}
	if *manifest != "" {
		if in.Manifest, err = os.ReadFile(*manifest); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	res, err := newClient(st.BaseURL).AttachPayload(ctx, st.DraftID, in)
	if err != nil {
		return describe(err)
	}
	sum := "none"
	if res.Attachment.SHA256 != nil {
		sum = *res.Attachment.SHA256
	}
	color.Green("attached %s to draft %s (version %d, sha256 %s)", res.Attachment.Kind, st.DraftID, res.DraftVersion, sum)
	return nil
}

func runDraftStatus(args []string) error {
	fs := pflag.NewFlagSet("draft status", pflag.ContinueOnError)
	statePath := fs.String("state", defaultStatePath(), "local draft state file")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	st, err := loadState(*statePath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	status, err := newClient(st.BaseURL).GetDraft(ctx, st.DraftID)
	if err != nil {
		return describe(err)
	}
	fmt.Printf("draft:   %s\n", status.DraftID)
	fmt.Printf("state:   %s\n", stateColor(status.State))
	fmt.Printf("method:  %s\n", status.IngestionMethod)
	fmt.Printf("files:   %d\n", len(status.Files))
	if status.EvidenceID != "" {
		fmt.Printf("evidence: %s\n", status.EvidenceID)
	}
	for _, m := range status.Validation.MissingFields {
		color.Yellow("missing: %s", m)
	}
	for _, fe := range status.Validation.FieldErrors {
		color.Red("invalid: %s: %s", fe.Field, fe.Error)
	}
	return nil
}

func runDraftSeal(args []string) error {
	fs := pflag.NewFlagSet("draft seal", pflag.ContinueOnError)
	requestID := fs.String("request-id", "", "idempotency key; defaults to a fresh id saved before sending")
	statePath := fs.String("state", defaultStatePath(), "local draft state file")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	st, err := loadState(*statePath)
	if err != nil {
		return err
	}
	reqID := *requestID
	if reqID == "" {
		reqID = uuid.NewString()
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	receipt, err := newClient(st.BaseURL).Seal(ctx, st.DraftID, reqID)
	if err != nil {
		return describe(err)
	}
	st.EvidenceID = receipt.EvidenceID
	st.UpdatedAt = time.Now().UTC()
	if err := saveState(*statePath, st); err != nil {
		return err
	}
	out, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return err
	}
	if receipt.LedgerState == string(domain.LedgerStateQuarantined) {
		color.Yellow("sealed into quarantine: %s", deref(receipt.QuarantineReason))
	} else if receipt.Replayed {
		color.Cyan("draft was already sealed; returning the existing receipt")
	} else {
		color.Green("sealed evidence %s", receipt.EvidenceID)
	}
	fmt.Println(string(out))
	return nil
}

func stateColor(state string) string {
	switch state {
	case string(domain.SealStateReadyToSeal), string(domain.SealStateSealed):
		return color.GreenString(state)
	case string(domain.SealStateQuarantined):
		return color.YellowString(state)
	case string(domain.SealStateAbandoned):
		return color.RedString(state)
	}
	return state
}

// describe expands server validation errors into one line per field.
func describe(err error) error {
	var apiErr *evidence.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	for _, fe := range apiErr.FieldErrors {
		color.Red("  %s: %s", fe.Field, fe.Error)
	}
	code := 1
	if apiErr.Code == domain.CodeValidationFailed {
		code = 2
	}
	return &exitError{code: code, err: apiErr}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
