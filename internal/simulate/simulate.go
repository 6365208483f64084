// Package simulate rehearses the draft-to-seal flow without touching any
// store. Its digests are placeholders derived from metadata only and are
// never valid SHA-256 hex, so they cannot be mistaken for ledger digests.
package simulate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"seald/internal/domain"
	"seald/internal/infra/crypto"
)

// DigestPrefix marks every simulated digest.
const DigestPrefix = "SIMULATED-"

// LedgerStateSimulated is reported instead of SEALED or QUARANTINED.
const LedgerStateSimulated = "SIMULATED"

// Digest is a placeholder digest. It is a distinct type so it cannot be
// assigned where a real digest string is expected without a conversion.
type Digest string

func (d Digest) String() string { return string(d) }

// IsDigest reports whether s has the simulated digest form:
// DigestPrefix followed by 16 lowercase hex characters.
func IsDigest(s string) bool {
	rest, ok := strings.CutPrefix(s, DigestPrefix)
	if !ok || len(rest) != 16 {
		return false
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func digestOf(sum uint64) Digest {
	return Digest(fmt.Sprintf("%s%016x", DigestPrefix, sum))
}

// FileDigest mixes file name, size and content type. It is not a
// security mechanism: two files with equal metadata collide.
func FileDigest(meta domain.FileMeta) Digest {
	h := xxhash.New()
	_, _ = h.WriteString(meta.FileName)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(strconv.FormatInt(meta.SizeBytes, 10))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(meta.ContentType)
	return digestOf(h.Sum64())
}

// MetadataDigest mixes the canonical JSON form of a declaration.
func MetadataDigest(decl domain.Declaration) (Digest, error) {
	canonical, err := crypto.Canonicalize(decl)
	if err != nil {
		return "", err
	}
	return digestOf(xxhash.Sum64(canonical)), nil
}

// CombineDigests folds file digests in order. A single digest is
// returned unchanged.
func CombineDigests(digests []Digest) Digest {
	if len(digests) == 1 {
		return digests[0]
	}
	h := xxhash.New()
	for _, d := range digests {
		_, _ = h.WriteString(string(d))
		_, _ = h.Write([]byte{'\n'})
	}
	return digestOf(h.Sum64())
}

// CheckFunc validates a declaration in simulation mode and returns the
// normalized form. It is injected so this package stays independent of
// the seal engine.
type CheckFunc func(decl domain.Declaration) (ok bool, fieldErrors, notices []domain.FieldError, normalized domain.Declaration)

type Rehearser struct {
	Check CheckFunc
	Build domain.BuildInfo
	Clock func() time.Time
}

type FileResult struct {
	domain.FileMeta
	Digest Digest `json:"digest"`
}

type Validation struct {
	ReadyToSeal   bool                `json:"ready_to_seal"`
	MissingFields []string            `json:"missing_fields"`
	FieldErrors   []domain.FieldError `json:"field_errors,omitempty"`
	Notices       []domain.FieldError `json:"notices,omitempty"`
}

// Receipt is the rehearsal counterpart of domain.SealReceipt. It always
// marshals with "simulated": true.
type Receipt struct {
	EvidenceID         string       `json:"evidence_id"`
	CorrelationID      string       `json:"correlation_id"`
	LedgerState        string       `json:"ledger_state"`
	PayloadHashSHA256  *Digest      `json:"payload_hash_sha256"`
	MetadataHashSHA256 Digest       `json:"metadata_hash_sha256"`
	SealedAtUTC        time.Time    `json:"sealed_at_utc"`
	RetentionEndsUTC   *time.Time   `json:"retention_ends_utc"`
	ReviewStatus       string       `json:"review_status"`
	Files              []FileResult `json:"files"`
	Validation         Validation   `json:"validation"`
	BuildID            string       `json:"build_id"`
	ContractVersion    string       `json:"contract_version"`
}

// Simulated is always true.
func (Receipt) Simulated() bool { return true }

func (r Receipt) MarshalJSON() ([]byte, error) {
	type plain Receipt
	return json.Marshal(struct {
		plain
		Simulated bool `json:"simulated"`
	}{plain: plain(r), Simulated: true})
}

// Rehearse validates decl and computes placeholder digests for files.
// Nothing is persisted.
func (r Rehearser) Rehearse(correlationID string, decl domain.Declaration, files []domain.FileMeta) (Receipt, error) {
	normalized := decl
	validation := Validation{MissingFields: []string{}}
	if r.Check != nil {
		ok, fieldErrors, notices, n := r.Check(decl)
		normalized = n
		validation.Notices = notices
		if !ok {
			for _, fe := range fieldErrors {
				if fe.Error == "required" {
					validation.MissingFields = append(validation.MissingFields, fe.Field)
					continue
				}
				validation.FieldErrors = append(validation.FieldErrors, fe)
			}
		}
	}

	results := make([]FileResult, 0, len(files))
	digests := make([]Digest, 0, len(files))
	for _, f := range files {
		d := FileDigest(f)
		results = append(results, FileResult{FileMeta: f, Digest: d})
		digests = append(digests, d)
	}
	// Every method needs at least one attachment to seal; reference-first
	// methods only defer the content digest.
	if len(files) == 0 {
		validation.MissingFields = append(validation.MissingFields, "attachments")
	}
	validation.ReadyToSeal = len(validation.MissingFields) == 0 && len(validation.FieldErrors) == 0

	meta, err := MetadataDigest(normalized)
	if err != nil {
		return Receipt{}, fmt.Errorf("simulate metadata digest: %w", err)
	}
	now := r.now()
	receipt := Receipt{
		EvidenceID:         string(meta),
		CorrelationID:      correlationID,
		LedgerState:        LedgerStateSimulated,
		MetadataHashSHA256: meta,
		SealedAtUTC:        now,
		ReviewStatus:       string(domain.ReviewNotReviewed),
		Files:              results,
		Validation:         validation,
		BuildID:            r.Build.BuildID,
		ContractVersion:    r.Build.ContractVersion,
	}
	if len(digests) > 0 {
		payload := CombineDigests(digests)
		receipt.PayloadHashSHA256 = &payload
	}
	if normalized.RetentionPolicy.Valid() {
		end := normalized.RetentionPolicy.RetentionEnd(now, normalized.RetentionDays)
		receipt.RetentionEndsUTC = &end
	}
	return receipt, nil
}

func (r Rehearser) now() time.Time {
	if r.Clock != nil {
		return r.Clock().UTC()
	}
	return time.Now().UTC()
}
