package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
	"github.com/paperdesk/be-doc-approvals/internal/repository"
	"github.com/paperdesk/be-doc-approvals/internal/service"
	"github.com/paperdesk/be-doc-approvals/internal/sign"
)

// maxUploadBytes bounds multipart submissions (32 MiB).
const maxUploadBytes = 32 << 20

// actorHeader carries the authenticated caller identity, supplied by the
// platform auth layer in front of this service.
const actorHeader = "X-Actor-ID"

// HTTPHandler exposes the approval pipeline over HTTP.
type HTTPHandler struct {
	documents *service.DocumentService
	approvals *service.ApprovalService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(documents *service.DocumentService, approvals *service.ApprovalService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		documents: documents,
		approvals: approvals,
		log:       log,
	}
}

// Register mounts all document approval routes.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", h.SubmitDocument)
		r.Get("/documents", h.ListDocuments)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Post("/resubmit", h.ResubmitDocument)
			r.Post("/approve", h.Approve)
			r.Post("/reject", h.Reject)
			r.Post("/request-revision", h.RequestRevision)
			r.Get("/preview", h.Preview)
			r.Get("/signed", h.Signed)
			r.Get("/original", h.Original)
			r.Get("/chain", h.Chain)
			r.Get("/audit", h.Audit)
		})
		r.Get("/approvals/pending", h.PendingApprovals)
	})
}

// ── Submission ────────────────────────────────────────────────────────────────

// SubmitDocument handles multipart document submissions.
func (h *HTTPHandler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseSubmission(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.documents.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// ResubmitDocument forks a new document from one halted in revision_requested.
func (h *HTTPHandler) ResubmitDocument(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseSubmission(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.documents.Resubmit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *HTTPHandler) parseSubmission(r *http.Request) (*service.SubmitDocumentRequest, error) {
	actorID, err := h.actor(r)
	if err != nil {
		return nil, err
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, errors.InvalidInput("body", "expected multipart form upload")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.InvalidInput("file", "file part is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read uploaded file")
	}

	return &service.SubmitDocumentRequest{
		Title:       r.FormValue("title"),
		DocType:     r.FormValue("doc_type"),
		Department:  r.FormValue("department"),
		FileName:    header.Filename,
		FileBytes:   data,
		SubmittedBy: actorID,
	}, nil
}

// ── Decisions ─────────────────────────────────────────────────────────────────

type decisionRequest struct {
	Comment       string `json:"comment"`
	SignaturePNG  string `json:"signature_png"`  // base64 image payload
	SignatureMIME string `json:"signature_mime"` // default image/png
}

// Approve handles an approval with an embedded signature image.
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actorID, err := h.actor(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.SignaturePNG)
	if err != nil {
		h.writeError(w, errors.InvalidInput("signature_png", "signature image is not valid base64"))
		return
	}
	mime := req.SignatureMIME
	if mime == "" {
		mime = "image/png"
	}
	img, err := sign.NewImage(raw, mime)
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.approvals.Approve(r.Context(), chi.URLParam(r, "id"), actorID, img, optional(req.Comment))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// Reject handles a rejection; the chain short-circuits.
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.halt(w, r, h.approvals.Reject)
}

// RequestRevision halts the chain pending changes.
func (h *HTTPHandler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	h.halt(w, r, h.approvals.RequestRevision)
}

type haltOp func(ctx context.Context, documentID, actorID string, comment *string) (*repository.Document, error)

func (h *HTTPHandler) halt(w http.ResponseWriter, r *http.Request, op haltOp) {
	actorID, err := h.actor(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	doc, err := op(r.Context(), chi.URLParam(r, "id"), actorID, optional(req.Comment))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// ── Preview / export ──────────────────────────────────────────────────────────

// Preview streams the previewable PDF rendition.
func (h *HTTPHandler) Preview(w http.ResponseWriter, r *http.Request) {
	data, err := h.documents.GetPreview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(data)
}

// Signed streams the latest signed artifact.
func (h *HTTPHandler) Signed(w http.ResponseWriter, r *http.Request) {
	data, doc, err := h.documents.GetSigned(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Title+"-signed.pdf"))
	w.Write(data)
}

// Original streams the originally uploaded bytes, labeled with the format the
// submitter uploaded even when signing operated on a converted rendition.
func (h *HTTPHandler) Original(w http.ResponseWriter, r *http.Request) {
	data, doc, err := h.documents.GetOriginal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", doc.Title+"."+doc.DeclaredFormat))
	w.Write(data)
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetDocument returns document metadata.
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// ListDocuments returns documents filtered by department and status.
func (h *HTTPHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	page := intQuery(r, "page", 1)
	pageSize := intQuery(r, "page_size", 50)

	docs, err := h.documents.ListDocuments(r.Context(),
		optional(r.URL.Query().Get("department")),
		optional(r.URL.Query().Get("status")),
		page, pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentResponse(doc))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": out,
		"page":      page,
		"pageSize":  pageSize,
	})
}

// Chain returns the ordered approval chain with decision metadata.
func (h *HTTPHandler) Chain(w http.ResponseWriter, r *http.Request) {
	levels, err := h.approvals.GetChain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]chainEntry, 0, len(levels))
	for _, level := range levels {
		out = append(out, chainEntry{
			Level:             level.LevelNumber,
			ApproverName:      level.ApproverName,
			Role:              level.RequiredRole,
			Status:            string(level.Status),
			Comment:           level.Comment,
			DecisionTimestamp: level.DecidedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"chain": out})
}

// Audit returns the immutable decision history.
func (h *HTTPHandler) Audit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.approvals.GetAuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// PendingApprovals returns the levels awaiting the calling approver.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	actorID, err := h.actor(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	levels, err := h.approvals.GetPendingForApprover(r.Context(), actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]pendingEntry, 0, len(levels))
	for _, level := range levels {
		out = append(out, pendingEntry{
			DocumentID: level.DocumentID,
			Level:      level.LevelNumber,
			Role:       level.RequiredRole,
			Since:      level.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"pending": out})
}

// ── Response shapes ───────────────────────────────────────────────────────────

type documentResponse struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	DocType            string     `json:"doc_type"`
	Department         string     `json:"department"`
	DeclaredFormat     string     `json:"declared_format"`
	Status             string     `json:"status"`
	HasSignedArtifact  bool       `json:"has_signed_artifact"`
	PreviousDocumentID *string    `json:"previous_document_id,omitempty"`
	SubmittedBy        string     `json:"submitted_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type chainEntry struct {
	Level             int        `json:"level"`
	ApproverName      string     `json:"approver_name"`
	Role              string     `json:"role"`
	Status            string     `json:"status"`
	Comment           *string    `json:"comment,omitempty"`
	DecisionTimestamp *time.Time `json:"decision_timestamp,omitempty"`
}

type pendingEntry struct {
	DocumentID string    `json:"document_id"`
	Level      int       `json:"level"`
	Role       string    `json:"role"`
	Since      time.Time `json:"since"`
}

func toDocumentResponse(doc *repository.Document) documentResponse {
	return documentResponse{
		ID:                 doc.ID,
		Title:              doc.Title,
		DocType:            doc.DocType,
		Department:         doc.Department,
		DeclaredFormat:     doc.DeclaredFormat,
		Status:             string(doc.Status),
		HasSignedArtifact:  doc.SignedKey != nil,
		PreviousDocumentID: doc.PreviousDocumentID,
		SubmittedBy:        doc.SubmittedBy,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) actor(r *http.Request) (string, error) {
	actorID := r.Header.Get(actorHeader)
	if actorID == "" {
		return "", errors.New(errors.ErrCodeUnauthorized, "missing "+actorHeader+" header")
	}
	return actorID, nil
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)

	var anchorErr *sign.AnchorOutOfBoundsError
	if errors.As(err, &anchorErr) {
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  string(errors.Code(err)),
		"error": err.Error(),
	})
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n < 1 {
		return fallback
	}
	return n
}
