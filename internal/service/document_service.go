package service

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/paperdesk/be-doc-approvals/internal/convert"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
	"github.com/paperdesk/be-doc-approvals/internal/repository"
	"github.com/paperdesk/be-doc-approvals/internal/storage"
)

// Typed failures of the preview/export surface.
var (
	// ErrNotYetApproved: no signed artifact exists because no level has
	// approved yet.
	ErrNotYetApproved = errors.New(errors.ErrCodeConflict, "document has no signed artifact yet")
	// ErrNotPreviewable: the stored format cannot be rendered for preview.
	ErrNotPreviewable = errors.New(errors.ErrCodeInvalidInput, "document format cannot be previewed")
)

// DocumentService handles submission intake and the preview/export surface.
type DocumentService struct {
	docs     DocumentRepo
	resolver *ChainResolver
	store    ArtifactStore
	pool     Converter
	audit    AuditRepo
	notifier Notifier
	log      *logger.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(
	docs DocumentRepo,
	resolver *ChainResolver,
	store ArtifactStore,
	pool Converter,
	audit AuditRepo,
	notifier Notifier,
	log *logger.Logger,
) *DocumentService {
	return &DocumentService{
		docs:     docs,
		resolver: resolver,
		store:    store,
		pool:     pool,
		audit:    audit,
		notifier: notifier,
		log:      log,
	}
}

// SubmitDocumentRequest carries one document submission.
type SubmitDocumentRequest struct {
	Title       string
	DocType     string
	Department  string
	FileName    string
	FileBytes   []byte
	SubmittedBy string
}

// Submit validates the upload, resolves the approval chain and creates the
// document with its full level chain atomically. Unsupported formats are
// rejected here, never discovered later at approval time.
func (s *DocumentService) Submit(ctx context.Context, req *SubmitDocumentRequest) (*repository.Document, error) {
	return s.submit(ctx, req, nil)
}

// Resubmit forks a new document (and fresh chain) from one halted in
// revision_requested. The halted document and its history stay untouched.
func (s *DocumentService) Resubmit(ctx context.Context, previousID string, req *SubmitDocumentRequest) (*repository.Document, error) {
	prev, err := s.docs.GetByID(ctx, previousID)
	if err != nil {
		return nil, err
	}
	if prev.Status != repository.DocumentRevisionRequested {
		return nil, errors.Newf(errors.ErrCodeConflict,
			"document %s is %s, only revision_requested documents can be resubmitted", previousID, prev.Status)
	}
	return s.submit(ctx, req, &previousID)
}

func (s *DocumentService) submit(ctx context.Context, req *SubmitDocumentRequest, previousID *string) (*repository.Document, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	if strings.TrimSpace(req.Department) == "" {
		return nil, errors.InvalidInput("department", "department is required")
	}
	if len(req.FileBytes) == 0 {
		return nil, errors.InvalidInput("file", "file is empty")
	}

	format := convert.Classify(req.FileName)
	if format == convert.FormatUnsupported {
		return nil, errors.InvalidInput("file", "unsupported file type: "+filepath.Ext(req.FileName))
	}

	chain, err := s.resolver.Resolve(ctx, req.DocType, req.Department)
	if err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	originalKey, err := s.store.Put(ctx, docID, storage.KindOriginal, safeFileName(req.FileName), req.FileBytes)
	if err != nil {
		return nil, err
	}

	doc := &repository.Document{
		ID:                 docID,
		Title:              req.Title,
		DocType:            req.DocType,
		Department:         req.Department,
		DeclaredFormat:     strings.ToLower(strings.TrimPrefix(filepath.Ext(req.FileName), ".")),
		Status:             repository.DocumentPending,
		OriginalKey:        originalKey,
		PreviousDocumentID: previousID,
		SubmittedBy:        req.SubmittedBy,
	}

	levels := make([]*repository.ApprovalLevel, 0, len(chain))
	for _, resolved := range chain {
		levels = append(levels, &repository.ApprovalLevel{
			LevelNumber:  resolved.LevelNumber,
			RequiredRole: resolved.Role,
			ApproverID:   resolved.PrincipalID,
			ApproverName: resolved.PrincipalName,
			Status:       repository.LevelAwaiting,
		})
	}

	if err := s.docs.CreateWithLevels(ctx, doc, levels); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Str("department", doc.Department).
		Int("levels", len(levels)).
		Msg("document submitted")

	statusAfter := string(doc.Status)
	if err := s.audit.Append(ctx, &repository.AuditEntry{
		DocumentID:  doc.ID,
		Action:      "submitted",
		PerformedBy: req.SubmittedBy,
		StatusAfter: &statusAfter,
		Metadata: map[string]interface{}{
			"title":  doc.Title,
			"levels": len(levels),
		},
	}); err != nil {
		s.log.Warn().Err(err).Str("document_id", doc.ID).Msg("failed to write audit log entry")
	}

	s.notifier.PublishDocumentEvent(ctx, "document_submitted", doc.ID, req.SubmittedBy,
		[]string{doc.SubmittedBy}, map[string]interface{}{"title": doc.Title})
	s.notifier.PublishDocumentEvent(ctx, "approval_required", doc.ID, req.SubmittedBy,
		[]string{levels[0].ApproverID}, map[string]interface{}{
			"title": doc.Title,
			"level": 1,
		})

	return doc, nil
}

// ── Preview / export ──────────────────────────────────────────────────────────

// GetPreview returns PDF bytes for on-screen display: the latest signed
// artifact when one exists, otherwise the original (converted through the
// pool when it is not a native PDF). Successful conversions are cached as
// the converted artifact; failed conversions cache nothing.
func (s *DocumentService) GetPreview(ctx context.Context, documentID string) ([]byte, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if doc.SignedKey != nil {
		return s.store.Get(ctx, *doc.SignedKey)
	}

	format := convert.Classify("f." + doc.DeclaredFormat)
	if !format.Previewable() {
		return nil, ErrNotPreviewable
	}

	original, err := s.store.Get(ctx, doc.OriginalKey)
	if err != nil {
		return nil, err
	}
	if format == convert.FormatPDF {
		return original, nil
	}

	convertedKey := s.store.Key(doc.ID, storage.KindConverted, "preview.pdf")
	if ok, err := s.store.Exists(ctx, convertedKey); err == nil && ok {
		return s.store.Get(ctx, convertedKey)
	}

	pdf, err := s.pool.Convert(ctx, original, doc.DeclaredFormat)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Put(ctx, doc.ID, storage.KindConverted, "preview.pdf", pdf); err != nil {
		// preview still succeeds; only the cache write failed
		s.log.Warn().Err(err).Str("document_id", doc.ID).Msg("failed to cache converted preview")
	}
	return pdf, nil
}

// GetSigned returns the latest signed artifact bytes.
func (s *DocumentService) GetSigned(ctx context.Context, documentID string) ([]byte, *repository.Document, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.SignedKey == nil {
		return nil, nil, ErrNotYetApproved
	}
	data, err := s.store.Get(ctx, *doc.SignedKey)
	if err != nil {
		return nil, nil, err
	}
	return data, doc, nil
}

// GetOriginal returns the originally uploaded bytes. The original may be
// legitimately absent for documents ingested before durable storage was
// configured; the store reports that as a distinct gone error.
func (s *DocumentService) GetOriginal(ctx context.Context, documentID string) ([]byte, *repository.Document, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.store.Get(ctx, doc.OriginalKey)
	if err != nil {
		return nil, nil, err
	}
	return data, doc, nil
}

// GetDocument returns document metadata.
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*repository.Document, error) {
	return s.docs.GetByID(ctx, documentID)
}

// ListDocuments returns documents filtered by optional department and status.
func (s *DocumentService) ListDocuments(ctx context.Context, department, status *string, page, pageSize int) ([]*repository.Document, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return s.docs.List(ctx, department, status, pageSize, (page-1)*pageSize)
}

func safeFileName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		return "upload"
	}
	return base
}
