package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Principal struct {
	Subject  string
	TenantID string
	Roles    []string
	Scopes   []string
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Principal  Principal
}

type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// APIError is the decoded error envelope of a non-2xx response.
type APIError struct {
	Status        int          `json:"-"`
	Code          string       `json:"error_code"`
	Message       string       `json:"message"`
	CorrelationID string       `json:"correlation_id"`
	FieldErrors   []FieldError `json:"field_errors,omitempty"`
	Retryable     bool         `json:"retryable"`
	UserFault     bool         `json:"user_fault"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("seald: %d %s: %s (correlation_id=%s)", e.Status, e.Code, e.Message, e.CorrelationID)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Draft struct {
	DraftID         string       `json:"draft_id"`
	CorrelationID   string       `json:"correlation_id"`
	State           string       `json:"state"`
	IngestionMethod string       `json:"ingestion_method"`
	Version         int64        `json:"version"`
	Changed         bool         `json:"changed"`
	Notices         []FieldError `json:"notices,omitempty"`
}

type Attachment struct {
	Kind        string  `json:"kind"`
	FileName    string  `json:"file_name,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	SizeBytes   int64   `json:"size_bytes"`
	SHA256      *string `json:"sha256"`
	ExternalRef string  `json:"external_ref,omitempty"`
}

type AttachInput struct {
	FileName            string          `json:"file_name,omitempty"`
	ContentType         string          `json:"content_type,omitempty"`
	Content             []byte          `json:"content_base64,omitempty"`
	Text                *string         `json:"text,omitempty"`
	Document            json.RawMessage `json:"document,omitempty"`
	Manifest            json.RawMessage `json:"manifest,omitempty"`
	PayloadDigestSHA256 string          `json:"payload_digest_sha256,omitempty"`
	ExternalRef         string          `json:"external_ref,omitempty"`
	SizeBytes           int64           `json:"size_bytes,omitempty"`
}

type AttachResult struct {
	CorrelationID string     `json:"correlation_id"`
	DraftID       string     `json:"draft_id"`
	DraftVersion  int64      `json:"draft_version"`
	Attachment    Attachment `json:"attachment"`
}

type Validation struct {
	ReadyToSeal   bool         `json:"ready_to_seal"`
	MissingFields []string     `json:"missing_fields"`
	FieldErrors   []FieldError `json:"field_errors,omitempty"`
}

type DraftStatus struct {
	DraftID         string          `json:"draft_id"`
	State           string          `json:"state"`
	IngestionMethod string          `json:"ingestion_method"`
	Version         int64           `json:"version"`
	Metadata        json.RawMessage `json:"metadata"`
	Files           []Attachment    `json:"files"`
	Validation      Validation      `json:"validation"`
	EvidenceID      string          `json:"evidence_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	LastModifiedAt  time.Time       `json:"last_modified_at"`
	CorrelationID   string          `json:"correlation_id"`
	BuildID         string          `json:"build_id"`
	ContractVersion string          `json:"contract_version"`
}

type Receipt struct {
	EvidenceID         string    `json:"evidence_id"`
	DraftID            string    `json:"draft_id"`
	CorrelationID      string    `json:"correlation_id"`
	RequestID          string    `json:"request_id"`
	LedgerState        string    `json:"ledger_state"`
	PayloadHashSHA256  *string   `json:"payload_hash_sha256"`
	PayloadHashStatus  string    `json:"payload_hash_status"`
	MetadataHashSHA256 string    `json:"metadata_hash_sha256"`
	SealedAtUTC        time.Time `json:"sealed_at_utc"`
	RetentionEndsUTC   time.Time `json:"retention_ends_utc"`
	ReviewStatus       string    `json:"review_status"`
	QuarantineReason   *string   `json:"quarantine_reason,omitempty"`
	BuildID            string    `json:"build_id"`
	ContractVersion    string    `json:"contract_version"`
	Simulated          bool      `json:"simulated"`
	Replayed           bool      `json:"replayed"`
}

type FileMeta struct {
	FileName    string `json:"file_name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = client
	}
}

func WithPrincipal(principal Principal) Option {
	return func(c *Client) {
		c.Principal = principal
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// CreateDraft posts a declaration. declaration is any JSON-encodable
// value, typically json.RawMessage read from a file.
func (c *Client) CreateDraft(ctx context.Context, declaration any) (Draft, error) {
	var out Draft
	err := c.do(ctx, http.MethodPost, "/v1/drafts", declaration, nil, &out)
	return out, err
}

func (c *Client) UpdateDraft(ctx context.Context, draftID string, declaration any) (Draft, error) {
	var out Draft
	err := c.do(ctx, http.MethodPut, draftPath(draftID, ""), declaration, nil, &out)
	return out, err
}

func (c *Client) AttachPayload(ctx context.Context, draftID string, input AttachInput) (AttachResult, error) {
	var out AttachResult
	err := c.do(ctx, http.MethodPost, draftPath(draftID, "/attachments"), input, nil, &out)
	return out, err
}

func (c *Client) GetDraft(ctx context.Context, draftID string) (DraftStatus, error) {
	var out DraftStatus
	err := c.do(ctx, http.MethodGet, draftPath(draftID, ""), nil, nil, &out)
	return out, err
}

// Seal seals a draft. Retrying with the same requestID is safe: a sealed
// draft answers with its existing receipt.
func (c *Client) Seal(ctx context.Context, draftID, requestID string) (Receipt, error) {
	var out Receipt
	headers := map[string]string{}
	if requestID != "" {
		headers["Idempotency-Key"] = requestID
	}
	err := c.do(ctx, http.MethodPost, draftPath(draftID, "/seal"), nil, headers, &out)
	return out, err
}

func (c *Client) AbandonDraft(ctx context.Context, draftID string) (Draft, error) {
	var out Draft
	err := c.do(ctx, http.MethodDelete, draftPath(draftID, ""), nil, nil, &out)
	return out, err
}

func (c *Client) GetReceipt(ctx context.Context, evidenceID string) (Receipt, error) {
	var out Receipt
	err := c.do(ctx, http.MethodGet, "/v1/evidence/"+url.PathEscape(evidenceID), nil, nil, &out)
	return out, err
}

func (c *Client) Review(ctx context.Context, evidenceID, status, note string) (Receipt, error) {
	var out Receipt
	body := map[string]string{"status": status, "note": note}
	err := c.do(ctx, http.MethodPost, "/v1/evidence/"+url.PathEscape(evidenceID)+"/review", body, nil, &out)
	return out, err
}

func (c *Client) LinkContent(ctx context.Context, evidenceID string, content []byte, sha256, contentType string) (Receipt, error) {
	var out Receipt
	body := struct {
		Content     []byte `json:"content_base64,omitempty"`
		SHA256      string `json:"sha256,omitempty"`
		SizeBytes   int64  `json:"size_bytes,omitempty"`
		ContentType string `json:"content_type,omitempty"`
	}{Content: content, SHA256: sha256, SizeBytes: int64(len(content)), ContentType: contentType}
	err := c.do(ctx, http.MethodPost, "/v1/evidence/"+url.PathEscape(evidenceID)+"/content", body, nil, &out)
	return out, err
}

// Simulate rehearses a seal server side. The raw receipt is returned
// since simulated receipts carry simulated digests.
func (c *Client) Simulate(ctx context.Context, declaration any, files []FileMeta) (json.RawMessage, error) {
	var out json.RawMessage
	body := map[string]any{"declaration": declaration, "files": files}
	err := c.do(ctx, http.MethodPost, "/v1/simulate", body, nil, &out)
	return out, err
}

func draftPath(draftID, suffix string) string {
	return "/v1/drafts/" + url.PathEscape(draftID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	if c == nil {
		return fmt.Errorf("evidence client is nil")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("seald base URL is required")
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.setPrincipal(req)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = "HTTP_" + http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		if apiErr.CorrelationID == "" {
			apiErr.CorrelationID = resp.Header.Get("X-Correlation-ID")
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setPrincipal(req *http.Request) {
	p := c.Principal
	if p.Subject != "" {
		req.Header.Set("X-Principal-Subject", p.Subject)
	}
	if p.TenantID != "" {
		req.Header.Set("X-Principal-Tenant", p.TenantID)
	}
	if len(p.Roles) > 0 {
		req.Header.Set("X-Principal-Roles", strings.Join(p.Roles, ","))
	}
	if len(p.Scopes) > 0 {
		req.Header.Set("X-Principal-Scopes", strings.Join(p.Scopes, ","))
	}
}
