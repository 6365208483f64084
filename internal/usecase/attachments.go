package usecase

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
)

// MissingAttachment is reported in missing_fields when a method needs a
// payload and none is attached.
const MissingAttachment = "attachments"

// PayloadInput is everything a caller may supply for one attachment.
// Adapters decide which parts their method accepts.
type PayloadInput struct {
	FileName            string
	ContentType         string
	Content             []byte
	Text                *string
	Document            json.RawMessage
	Manifest            json.RawMessage
	PayloadDigestSHA256 string
	ExternalRef         string
	SizeBytes           int64
}

func (in PayloadInput) hasBytes() bool {
	return len(in.Content) > 0 || (in.Text != nil && *in.Text != "")
}

type AttachmentResult struct {
	Attachment    domain.Attachment
	DraftVersion  int64
	CorrelationID string
}

// PayloadAdapter binds one ingestion method's payload shape to a draft.
type PayloadAdapter interface {
	Method() domain.IngestionMethod
	Build(decl domain.Declaration, in PayloadInput, opts ValidateOptions) (domain.Attachment, error)
	// Missing lists attachment requirements the draft does not meet yet.
	Missing(draft domain.Draft) []string
	// Check re-derives stored attachment digests against the current
	// declaration. The declaration may have changed since attach time.
	Check(draft domain.Draft) []domain.FieldError
}

var payloadAdapters = map[domain.IngestionMethod]PayloadAdapter{
	domain.MethodFileUpload:     rawBytesAdapter{method: domain.MethodFileUpload},
	domain.MethodERPExport:      rawBytesAdapter{method: domain.MethodERPExport},
	domain.MethodManualEntry:    manualJSONAdapter{},
	domain.MethodAPIPush:        manifestAdapter{method: domain.MethodAPIPush},
	domain.MethodERPAPI:         manifestAdapter{method: domain.MethodERPAPI},
	domain.MethodSupplierPortal: referenceAdapter{},
}

func AdapterFor(method domain.IngestionMethod) (PayloadAdapter, bool) {
	a, ok := payloadAdapters[method]
	return a, ok
}

// Attach validates a payload against the draft's method and appends it.
// Prior attachments are never removed.
func (s *DraftService) Attach(ctx context.Context, actor domain.Actor, draftID string, in PayloadInput) (AttachmentResult, error) {
	res, err := withDeadline(ctx, s.Timeout, func(ctx context.Context) (AttachmentResult, error) {
		return s.attach(ctx, actor, draftID, in)
	})
	payload := map[string]any{}
	if err == nil {
		payload["attachment_id"] = res.Attachment.ID
		payload["kind"] = string(res.Attachment.Kind)
		payload["position"] = res.Attachment.Position
		payload["digest_known"] = res.Attachment.SHA256 != nil
	}
	auditOrNop(s.Audit).Record(ctx, auditEntry(actor, domain.AuditPayloadAttached, draftID, "", err, payload))
	res.CorrelationID = CorrelationID(ctx)
	return res, err
}

func (s *DraftService) attach(ctx context.Context, actor domain.Actor, draftID string, in PayloadInput) (AttachmentResult, error) {
	draft, err := s.loadOwned(ctx, actor, draftID)
	if err != nil {
		return AttachmentResult{}, err
	}
	adapter, ok := AdapterFor(draft.Method)
	if !ok {
		return AttachmentResult{}, domain.NewValidationError(domain.FieldError{Field: "ingestion_method", Error: "unsupported"})
	}
	att, err := adapter.Build(draft.Declaration, in, ValidateOptions{})
	if err != nil {
		return AttachmentResult{}, err
	}
	now := s.now()
	att.ID = s.newID()
	att.Position = len(draft.Attachments)
	att.CreatedAt = now

	prev := draft.Version
	attachments := make([]domain.Attachment, 0, len(draft.Attachments)+1)
	attachments = append(attachments, draft.Attachments...)
	draft.Attachments = append(attachments, att)
	draft.Version = prev + 1
	draft.LastModifiedAt = now
	if err := s.Drafts.Update(ctx, draft, prev); err != nil {
		return AttachmentResult{}, err
	}
	return AttachmentResult{Attachment: att, DraftVersion: draft.Version}, nil
}

// rawBytesAdapter serves FILE_UPLOAD and ERP_EXPORT: bytes or raw text,
// digested as-is.
type rawBytesAdapter struct {
	method domain.IngestionMethod
}

func (a rawBytesAdapter) Method() domain.IngestionMethod { return a.method }

func (a rawBytesAdapter) Build(_ domain.Declaration, in PayloadInput, _ ValidateOptions) (domain.Attachment, error) {
	var fields []domain.FieldError
	if len(in.Document) > 0 {
		fields = append(fields, notAllowed("document", a.method))
	}
	if len(in.Manifest) > 0 {
		fields = append(fields, notAllowed("manifest", a.method))
	}
	if in.ExternalRef != "" {
		fields = append(fields, notAllowed("external_ref", a.method))
	}
	fields = append(fields, fileNameRules(in.FileName)...)
	if len(fields) > 0 {
		return domain.Attachment{}, domain.NewValidationError(fields...)
	}

	content := in.Content
	contentType := in.ContentType
	if len(content) == 0 && in.Text != nil {
		content = []byte(*in.Text)
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
	}
	if len(content) == 0 {
		return domain.Attachment{}, &domain.ValidationError{
			Cause:  domain.ErrPayloadRequired,
			Fields: []domain.FieldError{{Field: "content_base64", Error: "required", Hint: string(a.method) + " needs file bytes or text"}},
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sum := crypto.SHA256Hex(content)
	if in.PayloadDigestSHA256 != "" && in.PayloadDigestSHA256 != sum {
		return domain.Attachment{}, domain.NewValidationError(domain.FieldError{
			Field: "payload_digest_sha256",
			Error: "digest mismatch",
			Hint:  "digest must be computed over the raw bytes",
		})
	}
	return domain.Attachment{
		Kind:        domain.AttachmentFile,
		FileName:    in.FileName,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		SHA256:      &sum,
	}, nil
}

func (a rawBytesAdapter) Missing(draft domain.Draft) []string {
	return requireHashedAttachment(draft)
}

func (rawBytesAdapter) Check(domain.Draft) []domain.FieldError { return nil }

// manualJSONAdapter accepts a structured JSON object only and digests its
// canonical form.
type manualJSONAdapter struct{}

func (manualJSONAdapter) Method() domain.IngestionMethod { return domain.MethodManualEntry }

func (manualJSONAdapter) Build(_ domain.Declaration, in PayloadInput, _ ValidateOptions) (domain.Attachment, error) {
	var fields []domain.FieldError
	if in.hasBytes() {
		fields = append(fields, domain.FieldError{
			Field: "content_base64",
			Error: "not allowed",
			Hint:  "MANUAL_ENTRY accepts structured JSON only",
		})
	}
	if len(in.Manifest) > 0 {
		fields = append(fields, notAllowed("manifest", domain.MethodManualEntry))
	}
	if in.ExternalRef != "" {
		fields = append(fields, notAllowed("external_ref", domain.MethodManualEntry))
	}
	if len(fields) > 0 {
		return domain.Attachment{}, domain.NewValidationError(fields...)
	}
	if len(in.Document) == 0 || string(in.Document) == "null" {
		return domain.Attachment{}, &domain.ValidationError{
			Cause:  domain.ErrPayloadRequired,
			Fields: []domain.FieldError{{Field: "document", Error: "required"}},
		}
	}
	sum, canonical, err := crypto.CanonicalDocumentSHA256(in.Document)
	if err != nil {
		return domain.Attachment{}, domain.NewValidationError(domain.FieldError{
			Field: "document",
			Error: "invalid",
			Hint:  "must be a single JSON object",
		})
	}
	return domain.Attachment{
		Kind:        domain.AttachmentManualJSON,
		FileName:    in.FileName,
		ContentType: "application/json",
		SizeBytes:   int64(len(canonical)),
		SHA256:      &sum,
		Document:    json.RawMessage(canonical),
	}, nil
}

func (manualJSONAdapter) Missing(draft domain.Draft) []string {
	return requireHashedAttachment(draft)
}

func (manualJSONAdapter) Check(draft domain.Draft) []domain.FieldError {
	var errs []domain.FieldError
	for _, att := range draft.Attachments {
		if att.Kind != domain.AttachmentManualJSON || att.SHA256 == nil {
			continue
		}
		sum, _, err := crypto.CanonicalDocumentSHA256(att.Document)
		if err != nil || sum != *att.SHA256 {
			errs = append(errs, domain.FieldError{
				Field: "attachments[" + strconv.Itoa(att.Position) + "].document",
				Error: "digest mismatch",
			})
		}
	}
	return errs
}

// manifestAdapter serves API_PUSH and ERP_API: no bytes, only a run
// manifest and the externally computed digest of the unseen payload.
type manifestAdapter struct {
	method domain.IngestionMethod
}

func (a manifestAdapter) Method() domain.IngestionMethod { return a.method }

func (a manifestAdapter) Build(decl domain.Declaration, in PayloadInput, opts ValidateOptions) (domain.Attachment, error) {
	var fields []domain.FieldError
	if in.hasBytes() {
		fields = append(fields, domain.FieldError{
			Field: "content_base64",
			Error: "not allowed",
			Hint:  string(a.method) + " payloads stay with the source system",
		})
	}
	if len(in.Document) > 0 {
		fields = append(fields, notAllowed("document", a.method))
	}
	if in.ExternalRef != "" {
		fields = append(fields, notAllowed("external_ref", a.method))
	}
	if in.SizeBytes < 0 {
		fields = append(fields, domain.FieldError{Field: "size_bytes", Error: "negative"})
	}
	if len(fields) > 0 {
		return domain.Attachment{}, domain.NewValidationError(fields...)
	}
	if len(in.Manifest) == 0 || string(in.Manifest) == "null" {
		return domain.Attachment{}, &domain.ValidationError{
			Cause:  domain.ErrPayloadRequired,
			Fields: []domain.FieldError{{Field: "manifest", Error: "required"}},
		}
	}
	digest := strings.TrimSpace(in.PayloadDigestSHA256)
	if !digestAccepted(digest, opts) {
		errText := "required"
		if digest != "" {
			errText = "malformed digest"
		}
		return domain.Attachment{}, &domain.ValidationError{
			Cause:  domain.ErrDigestRequired,
			Fields: []domain.FieldError{{Field: "payload_digest_sha256", Error: errText, Hint: "64 lowercase hex characters"}},
		}
	}
	manifestSum, canonical, err := crypto.CanonicalDocumentSHA256(in.Manifest)
	if err != nil {
		return domain.Attachment{}, domain.NewValidationError(domain.FieldError{
			Field: "manifest",
			Error: "invalid",
			Hint:  "must be a single JSON object",
		})
	}
	declared := decl.ManifestDigest()
	if declared != "" && crypto.IsSHA256Hex(declared) && declared != manifestSum {
		return domain.Attachment{}, domain.NewValidationError(domain.FieldError{
			Field: "manifest",
			Error: "digest mismatch",
			Hint:  "canonical manifest hash must equal manifest_digest_sha256",
		})
	}
	return domain.Attachment{
		Kind:        domain.AttachmentManifest,
		FileName:    in.FileName,
		ContentType: "application/json",
		SizeBytes:   in.SizeBytes,
		SHA256:      &digest,
		Manifest:    json.RawMessage(canonical),
	}, nil
}

func (a manifestAdapter) Missing(draft domain.Draft) []string {
	return requireHashedAttachment(draft)
}

// Check recomputes each manifest's canonical hash and compares it with
// the declared manifest_digest_sha256.
func (a manifestAdapter) Check(draft domain.Draft) []domain.FieldError {
	declared := draft.Declaration.ManifestDigest()
	var errs []domain.FieldError
	for _, att := range draft.Attachments {
		if att.Kind != domain.AttachmentManifest {
			continue
		}
		field := "attachments[" + strconv.Itoa(att.Position) + "].manifest"
		sum, _, err := crypto.CanonicalDocumentSHA256(att.Manifest)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: field, Error: "invalid"})
			continue
		}
		if crypto.IsSHA256Hex(declared) && sum != declared {
			errs = append(errs, domain.FieldError{
				Field: field,
				Error: "digest mismatch",
				Hint:  "canonical manifest hash must equal manifest_digest_sha256",
			})
		}
	}
	return errs
}

// referenceAdapter serves SUPPLIER_PORTAL. Metadata seals first; content
// may be linked to the evidence record afterwards.
type referenceAdapter struct{}

func (referenceAdapter) Method() domain.IngestionMethod { return domain.MethodSupplierPortal }

func (referenceAdapter) Build(_ domain.Declaration, in PayloadInput, opts ValidateOptions) (domain.Attachment, error) {
	var fields []domain.FieldError
	if in.hasBytes() {
		fields = append(fields, domain.FieldError{
			Field: "content_base64",
			Error: "not allowed",
			Hint:  "link content to the sealed evidence instead",
		})
	}
	if len(in.Document) > 0 {
		fields = append(fields, notAllowed("document", domain.MethodSupplierPortal))
	}
	if len(in.Manifest) > 0 {
		fields = append(fields, notAllowed("manifest", domain.MethodSupplierPortal))
	}
	fields = append(fields, fileNameRules(in.FileName)...)
	if len(in.ExternalRef) > maxShortField {
		fields = append(fields, domain.FieldError{Field: "external_ref", Error: "too long"})
	}
	if len(fields) > 0 {
		return domain.Attachment{}, domain.NewValidationError(fields...)
	}
	ref := strings.TrimSpace(in.ExternalRef)
	if ref == "" {
		return domain.Attachment{}, &domain.ValidationError{
			Cause:  domain.ErrPayloadRequired,
			Fields: []domain.FieldError{{Field: "external_ref", Error: "required", Hint: "portal file reference"}},
		}
	}
	att := domain.Attachment{
		Kind:        domain.AttachmentReference,
		FileName:    in.FileName,
		ContentType: in.ContentType,
		SizeBytes:   in.SizeBytes,
		ExternalRef: ref,
	}
	if digest := strings.TrimSpace(in.PayloadDigestSHA256); digest != "" {
		if !digestAccepted(digest, opts) {
			return domain.Attachment{}, &domain.ValidationError{
				Cause:  domain.ErrDigestRequired,
				Fields: []domain.FieldError{{Field: "payload_digest_sha256", Error: "malformed digest", Hint: "omit it or send 64 lowercase hex characters"}},
			}
		}
		att.SHA256 = &digest
	}
	return att, nil
}

func (referenceAdapter) Check(domain.Draft) []domain.FieldError { return nil }

func (referenceAdapter) Missing(draft domain.Draft) []string {
	if len(draft.Attachments) == 0 {
		return []string{MissingAttachment}
	}
	return nil
}

func requireHashedAttachment(draft domain.Draft) []string {
	if len(draft.Attachments) == 0 {
		return []string{MissingAttachment}
	}
	var missing []string
	for _, att := range draft.Attachments {
		if att.SHA256 == nil {
			missing = append(missing, "attachments["+strconv.Itoa(att.Position)+"].sha256")
		}
	}
	return missing
}

func digestAccepted(digest string, opts ValidateOptions) bool {
	if crypto.IsSHA256Hex(digest) {
		return true
	}
	return opts.Simulation && opts.SimulatedDigest != nil && opts.SimulatedDigest(digest)
}

func notAllowed(field string, method domain.IngestionMethod) domain.FieldError {
	return domain.FieldError{Field: field, Error: "not allowed", Hint: "not accepted for " + string(method)}
}

func fileNameRules(name string) []domain.FieldError {
	if len(name) > maxShortField {
		return []domain.FieldError{{Field: "file_name", Error: "too long"}}
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return []domain.FieldError{{Field: "file_name", Error: "invalid", Hint: "base name only"}}
	}
	return nil
}
