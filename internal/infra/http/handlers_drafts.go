package http

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"seald/internal/domain"
	"seald/internal/usecase"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 64 << 20

type draftResponse struct {
	DraftID         string                 `json:"draft_id"`
	CorrelationID   string                 `json:"correlation_id"`
	State           domain.DraftState      `json:"state"`
	IngestionMethod domain.IngestionMethod `json:"ingestion_method"`
	Version         int64                  `json:"version"`
	Changed         bool                   `json:"changed"`
	Notices         []domain.FieldError    `json:"notices,omitempty"`
}

type attachRequest struct {
	FileName            string          `json:"file_name"`
	ContentType         string          `json:"content_type"`
	ContentBase64       string          `json:"content_base64"`
	Text                *string         `json:"text"`
	Document            json.RawMessage `json:"document"`
	Manifest            json.RawMessage `json:"manifest"`
	PayloadDigestSHA256 string          `json:"payload_digest_sha256"`
	ExternalRef         string          `json:"external_ref"`
	SizeBytes           int64           `json:"size_bytes"`
}

type attachResponse struct {
	CorrelationID string            `json:"correlation_id"`
	DraftID       string            `json:"draft_id"`
	DraftVersion  int64             `json:"draft_version"`
	Attachment    domain.Attachment `json:"attachment"`
}

type draftForSealResponse struct {
	DraftID         string                 `json:"draft_id"`
	State           domain.SealState       `json:"state"`
	IngestionMethod domain.IngestionMethod `json:"ingestion_method"`
	Version         int64                  `json:"version"`
	Metadata        domain.Declaration     `json:"metadata"`
	Files           []domain.Attachment    `json:"files"`
	Validation      usecase.SealValidation `json:"validation"`
	EvidenceID      string                 `json:"evidence_id,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	LastModifiedAt  time.Time              `json:"last_modified_at"`
	CorrelationID   string                 `json:"correlation_id"`
	BuildID         string                 `json:"build_id"`
	ContractVersion string                 `json:"contract_version"`
}

type sealRequest struct {
	RequestID string `json:"request_id"`
}

func (s *Server) handleCreateDraft(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermDraftWrite)
	if !ok || !s.enforceRateLimit(c, routeDraftCreate, principal) {
		return
	}
	var decl domain.Declaration
	if !s.bindJSON(c, &decl) {
		return
	}
	res, err := s.drafts.Create(c.Request.Context(), principal.Actor(), decl)
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := http.StatusCreated
	if !res.Changed {
		status = http.StatusOK
	}
	c.JSON(status, s.draftResponse(c, res))
}

func (s *Server) handleUpdateDraft(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermDraftWrite)
	if !ok {
		return
	}
	draftID, ok := s.draftIDParam(c)
	if !ok || !s.enforceRateLimit(c, routeDraftUpdate, principal) {
		return
	}
	var decl domain.Declaration
	if !s.bindJSON(c, &decl) {
		return
	}
	res, err := s.drafts.Update(c.Request.Context(), principal.Actor(), draftID, decl)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.draftResponse(c, res))
}

func (s *Server) handleAttachPayload(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermDraftWrite)
	if !ok {
		return
	}
	draftID, ok := s.draftIDParam(c)
	if !ok || !s.enforceRateLimit(c, routeDraftAttach, principal) {
		return
	}
	in, err := s.payloadInput(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	res, err := s.drafts.Attach(c.Request.Context(), principal.Actor(), draftID, in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachResponse{
		CorrelationID: correlationID(c),
		DraftID:       draftID,
		DraftVersion:  res.DraftVersion,
		Attachment:    res.Attachment,
	})
}

func (s *Server) handleGetDraftForSeal(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermDraftRead)
	if !ok {
		return
	}
	draftID, ok := s.draftIDParam(c)
	if !ok {
		return
	}
	view, err := s.seal.GetDraftForSeal(c.Request.Context(), principal.Actor(), draftID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	files := view.Draft.Attachments
	if files == nil {
		files = []domain.Attachment{}
	}
	validation := view.Validation
	if validation.MissingFields == nil {
		validation.MissingFields = []string{}
	}
	c.JSON(http.StatusOK, draftForSealResponse{
		DraftID:         view.Draft.ID,
		State:           view.State,
		IngestionMethod: view.Draft.Method,
		Version:         view.Draft.Version,
		Metadata:        view.Draft.Declaration,
		Files:           files,
		Validation:      validation,
		EvidenceID:      view.Draft.EvidenceID,
		CreatedAt:       view.Draft.CreatedAt.UTC(),
		LastModifiedAt:  view.Draft.LastModifiedAt.UTC(),
		CorrelationID:   correlationID(c),
		BuildID:         s.build.BuildID,
		ContractVersion: s.build.ContractVersion,
	})
}

func (s *Server) handleSealDraft(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermSeal)
	if !ok {
		return
	}
	draftID, ok := s.draftIDParam(c)
	if !ok || !s.enforceRateLimit(c, routeDraftSeal, principal) {
		return
	}
	var req sealRequest
	if c.Request.ContentLength > 0 && !s.bindJSON(c, &req) {
		return
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	if requestID == "" {
		requestID = correlationID(c)
	}
	receipt, err := s.seal.Seal(c.Request.Context(), principal.Actor(), draftID, requestID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, receipt)
}

func (s *Server) handleAbandonDraft(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermDraftWrite)
	if !ok {
		return
	}
	draftID, ok := s.draftIDParam(c)
	if !ok || !s.enforceRateLimit(c, routeDraftAbandon, principal) {
		return
	}
	draft, err := s.drafts.Abandon(c.Request.Context(), principal.Actor(), draftID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.draftResponse(c, usecase.DraftResult{Draft: draft, Changed: true}))
}

func (s *Server) handleNoRoute(c *gin.Context) {
	path := strings.TrimSuffix(c.Request.URL.Path, "/")
	if path == "/v1/drafts" && c.Request.Method != http.MethodPost {
		s.writeError(c, domain.ErrDraftIDMissing)
		return
	}
	if strings.HasPrefix(c.Request.URL.Path, "/v1/drafts//") {
		s.writeError(c, domain.ErrDraftIDMissing)
		return
	}
	s.writeErrorCode(c, http.StatusNotFound, domain.CodeNotFound, "route not found", nil)
}

func (s *Server) draftIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("draft_id"))
	if id == "" {
		s.writeError(c, domain.ErrDraftIDMissing)
		return "", false
	}
	return id, true
}

func (s *Server) bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		s.writeErrorCode(c, http.StatusBadRequest, domain.CodeInvalidJSON, "invalid json", nil)
		return false
	}
	return true
}

func (s *Server) draftResponse(c *gin.Context, res usecase.DraftResult) draftResponse {
	return draftResponse{
		DraftID:         res.Draft.ID,
		CorrelationID:   correlationID(c),
		State:           res.Draft.State,
		IngestionMethod: res.Draft.Method,
		Version:         res.Draft.Version,
		Changed:         res.Changed,
		Notices:         res.Notices,
	}
}

// payloadInput accepts either a JSON descriptor or a multipart upload
// with the bytes in the "file" part.
func (s *Server) payloadInput(c *gin.Context) (usecase.PayloadInput, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		return multipartPayload(c)
	}
	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return usecase.PayloadInput{}, domain.ErrInvalidJSON
	}
	in := usecase.PayloadInput{
		FileName:            req.FileName,
		ContentType:         req.ContentType,
		Text:                req.Text,
		Document:            req.Document,
		Manifest:            req.Manifest,
		PayloadDigestSHA256: req.PayloadDigestSHA256,
		ExternalRef:         req.ExternalRef,
		SizeBytes:           req.SizeBytes,
	}
	if req.ContentBase64 != "" {
		content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			return usecase.PayloadInput{}, domain.NewValidationError(domain.FieldError{
				Field: "content_base64",
				Error: "invalid base64",
			})
		}
		in.Content = content
	}
	return in, nil
}

func multipartPayload(c *gin.Context) (usecase.PayloadInput, error) {
	in := usecase.PayloadInput{
		FileName:            c.PostForm("file_name"),
		ContentType:         c.PostForm("content_type"),
		PayloadDigestSHA256: c.PostForm("payload_digest_sha256"),
		ExternalRef:         c.PostForm("external_ref"),
	}
	if raw := c.PostForm("size_bytes"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return usecase.PayloadInput{}, domain.NewValidationError(domain.FieldError{Field: "size_bytes", Error: "not an integer"})
		}
		in.SizeBytes = n
	}
	header, err := c.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			return in, nil
		}
		return usecase.PayloadInput{}, domain.ErrInvalidJSON
	}
	if header.Size > maxUploadBytes {
		return usecase.PayloadInput{}, domain.NewValidationError(domain.FieldError{Field: "file", Error: "too large"})
	}
	f, err := header.Open()
	if err != nil {
		return usecase.PayloadInput{}, err
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return usecase.PayloadInput{}, err
	}
	in.Content = content
	if in.FileName == "" {
		in.FileName = header.Filename
	}
	if in.ContentType == "" {
		in.ContentType = header.Header.Get("Content-Type")
	}
	return in, nil
}
