package http

import (
	"encoding/base64"
	"net/http"
	"strings"

	"seald/internal/config"
	"seald/internal/domain"
	"seald/internal/usecase"

	"github.com/gin-gonic/gin"
)

type reviewRequest struct {
	Status domain.ReviewStatus `json:"status"`
	Note   string              `json:"note"`
}

type contentRequest struct {
	ContentBase64 string `json:"content_base64"`
	SHA256        string `json:"sha256"`
	SizeBytes     int64  `json:"size_bytes"`
	ContentType   string `json:"content_type"`
}

type simulateRequest struct {
	Declaration domain.Declaration `json:"declaration"`
	Files       []domain.FileMeta  `json:"files"`
}

func (s *Server) handleGetReceipt(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermDraftRead)
	if !ok {
		return
	}
	evidenceID, ok := s.evidenceIDParam(c)
	if !ok {
		return
	}
	receipt, err := s.evidence.GetReceipt(c.Request.Context(), principal.Actor(), evidenceID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleReviewEvidence(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermReview)
	if !ok || !s.requireCapability(c, principal, config.CapReview, false) {
		return
	}
	evidenceID, ok := s.evidenceIDParam(c)
	if !ok || !s.enforceRateLimit(c, routeEvidenceReview, principal) {
		return
	}
	var req reviewRequest
	if !s.bindJSON(c, &req) {
		return
	}
	in := usecase.ReviewInput{
		Status: domain.ReviewStatus(strings.ToUpper(strings.TrimSpace(string(req.Status)))),
		Note:   req.Note,
	}
	receipt, err := s.evidence.Review(c.Request.Context(), principal.Actor(), evidenceID, in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleLinkContent(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermContentLink)
	if !ok {
		return
	}
	evidenceID, ok := s.evidenceIDParam(c)
	if !ok || !s.enforceRateLimit(c, routeEvidenceContent, principal) {
		return
	}
	var req contentRequest
	if !s.bindJSON(c, &req) {
		return
	}
	in := usecase.ContentInput{
		SHA256:      req.SHA256,
		SizeBytes:   req.SizeBytes,
		ContentType: req.ContentType,
	}
	if req.ContentBase64 != "" {
		content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			s.writeError(c, domain.NewValidationError(domain.FieldError{Field: "content_base64", Error: "invalid base64"}))
			return
		}
		in.Content = content
	}
	receipt, err := s.evidence.LinkContent(c.Request.Context(), principal.Actor(), evidenceID, in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// handleSimulate rehearses a seal without touching any store. The route
// only exists for callers holding the simulation capability.
func (s *Server) handleSimulate(c *gin.Context) {
	principal, ok := s.requireAuth(c, domain.PermSimulate)
	if !ok || !s.requireCapability(c, principal, config.CapSimulation, true) {
		return
	}
	if s.rehearser == nil {
		s.writeErrorCode(c, http.StatusNotFound, domain.CodeNotFound, "route not found", nil)
		return
	}
	if !s.enforceRateLimit(c, routeSimulate, principal) {
		return
	}
	var req simulateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	receipt, err := s.rehearser.Rehearse(correlationID(c), req.Declaration, req.Files)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) evidenceIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("evidence_id"))
	if id == "" {
		s.writeError(c, domain.ErrNotFound)
		return "", false
	}
	return id, true
}
