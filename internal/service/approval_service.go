package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/paperdesk/be-doc-approvals/internal/convert"
	"github.com/paperdesk/be-doc-approvals/internal/metrics"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
	"github.com/paperdesk/be-doc-approvals/internal/repository"
	"github.com/paperdesk/be-doc-approvals/internal/sign"
	"github.com/paperdesk/be-doc-approvals/internal/storage"
)

// Typed state-machine violations. All are rejected synchronously and mutate
// nothing.
var (
	// ErrInvalidLevel: the caller is not the resolved approver of any
	// undecided level on the document.
	ErrInvalidLevel = errors.New(errors.ErrCodeUnauthorized, "caller is not the approver for this level")
	// ErrOutOfSequence: a predecessor level is not yet approved.
	ErrOutOfSequence = errors.New(errors.ErrCodeConflict, "a predecessor level is not yet approved")
	// ErrAlreadyDecided: the level already carries a terminal decision.
	ErrAlreadyDecided = errors.New(errors.ErrCodeConflict, "approval level is already decided")
)

// ApprovalService is the approval state machine: the only component allowed
// to transition a document between lifecycle states. Document status is
// always derived from the aggregate of its level statuses:
//
//	pending            no level decided yet
//	in_review          some but not all levels approved
//	approved           every level approved
//	rejected           some level rejected; the chain short-circuits
//	revision_requested an approver asked for changes; the chain halts
type ApprovalService struct {
	docs     DocumentRepo
	levels   LevelsRepo
	sigs     SignaturesRepo
	store    ArtifactStore
	pool     Converter
	embedder Embedder
	audit    AuditRepo
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger
	locks    *keyedMutex
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	docs DocumentRepo,
	levels LevelsRepo,
	sigs SignaturesRepo,
	store ArtifactStore,
	pool Converter,
	embedder Embedder,
	audit AuditRepo,
	notifier Notifier,
	m *metrics.Metrics,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		docs:     docs,
		levels:   levels,
		sigs:     sigs,
		store:    store,
		pool:     pool,
		embedder: embedder,
		audit:    audit,
		notifier: notifier,
		metrics:  m,
		log:      log,
		locks:    newKeyedMutex(),
	}
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve records an approval at the caller's level and embeds their
// signature into the document artifact. Ordering is embed → persist artifact
// → commit state: the persisted approved state never exists without a stored
// signed artifact, so a failed embedding leaves the level awaiting.
func (s *ApprovalService) Approve(ctx context.Context, documentID, actorID string, img sign.Image, comment *string) (*repository.Document, error) {
	if img.IsZero() {
		return nil, errors.InvalidInput("signature_image", "an approval requires a signature image")
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, levels, target, err := s.loadForDecision(ctx, documentID, actorID)
	if err != nil {
		s.metrics.Decisions.WithLabelValues("approve", "rejected_precondition").Inc()
		return nil, err
	}

	signed, err := s.embedChain(ctx, doc, levels, target, img)
	if err != nil {
		s.metrics.Decisions.WithLabelValues("approve", "embed_failed").Inc()
		return nil, err
	}

	imageKey, err := s.store.Put(ctx, doc.ID, storage.KindSignature,
		fmt.Sprintf("level-%d%s", target.LevelNumber, imageExt(img.MIME())), img.Bytes())
	if err != nil {
		return nil, err
	}
	signedKey, err := s.store.Put(ctx, doc.ID, storage.KindSigned, "signed.pdf", signed)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(signed)
	sigRecord := &repository.SignatureRecord{
		LevelID:          target.ID,
		DocumentID:       doc.ID,
		ImageKey:         imageKey,
		ImageMIME:        img.MIME(),
		SignerID:         actorID,
		SignerName:       target.ApproverName,
		SignerRole:       target.RequiredRole,
		SignerDepartment: doc.Department,
		ArtifactSHA256:   hex.EncodeToString(sum[:]),
	}

	newStatus := repository.DocumentInReview
	if s.approvedCount(levels)+1 == len(levels) {
		newStatus = repository.DocumentApproved
	}

	statusBefore := string(doc.Status)
	if err := s.docs.CommitApproval(ctx, doc, target, sigRecord, newStatus, signedKey, comment); err != nil {
		return nil, err
	}

	s.metrics.Decisions.WithLabelValues("approve", "committed").Inc()
	s.log.Info().
		Str("document_id", doc.ID).
		Int("level", target.LevelNumber).
		Str("status", string(newStatus)).
		Msg("approval recorded")

	s.appendAudit(ctx, doc, target, "approved", actorID, statusBefore)
	s.notifyDecision(ctx, doc, levels, target, actorID, newStatus)

	return doc, nil
}

// ── Reject / Request revision ─────────────────────────────────────────────────

// Reject records a rejection at the caller's level. No embedding is
// attempted; the chain short-circuits and later levels can never act.
func (s *ApprovalService) Reject(ctx context.Context, documentID, actorID string, comment *string) (*repository.Document, error) {
	return s.halt(ctx, documentID, actorID, comment,
		repository.LevelRejected, repository.DocumentRejected, "rejected")
}

// RequestRevision halts the chain at the caller's level pending changes.
// Resubmission creates a new document and chain; this one stays halted.
func (s *ApprovalService) RequestRevision(ctx context.Context, documentID, actorID string, comment *string) (*repository.Document, error) {
	return s.halt(ctx, documentID, actorID, comment,
		repository.LevelRevisionRequested, repository.DocumentRevisionRequested, "revision_requested")
}

func (s *ApprovalService) halt(
	ctx context.Context,
	documentID, actorID string,
	comment *string,
	levelStatus repository.LevelStatus,
	docStatus repository.DocumentStatus,
	action string,
) (*repository.Document, error) {
	if comment == nil || *comment == "" {
		return nil, errors.InvalidInput("comment", action+" requires a comment")
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, _, target, err := s.loadForDecision(ctx, documentID, actorID)
	if err != nil {
		s.metrics.Decisions.WithLabelValues(action, "rejected_precondition").Inc()
		return nil, err
	}

	statusBefore := string(doc.Status)
	if err := s.docs.CommitHalt(ctx, doc, target, levelStatus, docStatus, comment); err != nil {
		return nil, err
	}

	s.metrics.Decisions.WithLabelValues(action, "committed").Inc()
	s.log.Info().
		Str("document_id", doc.ID).
		Int("level", target.LevelNumber).
		Str("action", action).
		Msg("chain halted")

	s.appendAudit(ctx, doc, target, action, actorID, statusBefore)
	s.notifier.PublishDocumentEvent(ctx, "document_"+action, doc.ID, actorID,
		[]string{doc.SubmittedBy}, map[string]interface{}{
			"level":   target.LevelNumber,
			"comment": *comment,
		})

	return doc, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetChain returns the ordered approval chain for a document.
func (s *ApprovalService) GetChain(ctx context.Context, documentID string) ([]*repository.ApprovalLevel, error) {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.levels.GetByDocumentID(ctx, documentID)
}

// GetPendingForApprover returns the levels currently awaiting the approver.
func (s *ApprovalService) GetPendingForApprover(ctx context.Context, approverID string) ([]*repository.ApprovalLevel, error) {
	return s.levels.GetPendingForApprover(ctx, approverID)
}

// GetAuditTrail returns the immutable decision history for a document.
func (s *ApprovalService) GetAuditTrail(ctx context.Context, documentID string) ([]*repository.AuditEntry, error) {
	return s.audit.GetByDocumentID(ctx, documentID)
}

// ── Decision plumbing ─────────────────────────────────────────────────────────

// loadForDecision loads the document and levels and locates the level the
// actor may decide, enforcing the three state-machine guards in order:
// approver binding, sequential gating, single decision per level.
func (s *ApprovalService) loadForDecision(ctx context.Context, documentID, actorID string) (*repository.Document, []*repository.ApprovalLevel, *repository.ApprovalLevel, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, nil, err
	}

	levels, err := s.levels.GetByDocumentID(ctx, documentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(levels) == 0 {
		return nil, nil, nil, errors.Newf(errors.ErrCodeInternal, "document %s has no approval chain", documentID)
	}

	var target *repository.ApprovalLevel
	owned := false
	for _, level := range levels {
		if level.ApproverID != actorID {
			continue
		}
		owned = true
		if !level.Status.Decided() {
			target = level
			break
		}
	}
	if !owned {
		return nil, nil, nil, ErrInvalidLevel
	}
	if target == nil {
		// every level the actor owns is already decided
		return nil, nil, nil, ErrAlreadyDecided
	}

	for _, level := range levels {
		if level.LevelNumber >= target.LevelNumber {
			break
		}
		if level.Status != repository.LevelApproved {
			return nil, nil, nil, ErrOutOfSequence
		}
	}

	return doc, levels, target, nil
}

// embedChain rebuilds the signed artifact from the clean base: the original
// (converted to PDF when it is not one) plus every previously recorded
// signature, plus the new one. Rebuilding from the base keeps embedding
// deterministic regardless of how many revisions of signed.pdf went before.
func (s *ApprovalService) embedChain(
	ctx context.Context,
	doc *repository.Document,
	levels []*repository.ApprovalLevel,
	target *repository.ApprovalLevel,
	img sign.Image,
) ([]byte, error) {
	base, err := s.basePDF(ctx, doc)
	if err != nil {
		return nil, err
	}

	pageCount, err := s.embedder.PageCount(base)
	if err != nil {
		return nil, err
	}

	levelByID := make(map[string]int, len(levels))
	for _, level := range levels {
		levelByID[level.ID] = level.LevelNumber
	}

	prior, err := s.sigs.GetByDocumentID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	placed := make([]sign.PlacedSignature, 0, len(prior)+1)
	for _, record := range prior {
		data, err := s.store.Get(ctx, record.ImageKey)
		if err != nil {
			return nil, err
		}
		priorImg, err := sign.NewImage(data, record.ImageMIME)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "stored signature image is invalid")
		}
		placed = append(placed, sign.DefaultAnchor(levelByID[record.LevelID], pageCount, priorImg))
	}
	placed = append(placed, sign.DefaultAnchor(target.LevelNumber, pageCount, img))

	return s.embedder.Embed(base, placed)
}

// basePDF returns the embeddable PDF for a document: the original bytes when
// the upload was a native PDF, otherwise the renderer's conversion of them.
func (s *ApprovalService) basePDF(ctx context.Context, doc *repository.Document) ([]byte, error) {
	original, err := s.store.Get(ctx, doc.OriginalKey)
	if err != nil {
		return nil, err
	}
	if convert.Classify("f."+doc.DeclaredFormat) == convert.FormatPDF {
		return original, nil
	}
	return s.pool.Convert(ctx, original, doc.DeclaredFormat)
}

func (s *ApprovalService) approvedCount(levels []*repository.ApprovalLevel) int {
	n := 0
	for _, level := range levels {
		if level.Status == repository.LevelApproved {
			n++
		}
	}
	return n
}

// appendAudit writes an audit entry and logs a warning on failure (never
// returns error).
func (s *ApprovalService) appendAudit(ctx context.Context, doc *repository.Document, level *repository.ApprovalLevel, action, actorID, statusBefore string) {
	statusAfter := string(doc.Status)
	if err := s.audit.Append(ctx, &repository.AuditEntry{
		DocumentID:   doc.ID,
		LevelID:      &level.ID,
		Action:       action,
		PerformedBy:  actorID,
		StatusBefore: &statusBefore,
		StatusAfter:  &statusAfter,
		Metadata: map[string]interface{}{
			"level":         level.LevelNumber,
			"required_role": level.RequiredRole,
		},
	}); err != nil {
		s.log.Warn().Err(err).
			Str("document_id", doc.ID).
			Str("action", action).
			Msg("failed to write audit log entry")
	}
}

func (s *ApprovalService) notifyDecision(ctx context.Context, doc *repository.Document, levels []*repository.ApprovalLevel, decided *repository.ApprovalLevel, actorID string, newStatus repository.DocumentStatus) {
	if newStatus == repository.DocumentApproved {
		s.notifier.PublishDocumentEvent(ctx, "document_approved", doc.ID, actorID,
			[]string{doc.SubmittedBy}, map[string]interface{}{"title": doc.Title})
		return
	}
	// the next awaiting level is now actionable
	for _, level := range levels {
		if level.LevelNumber == decided.LevelNumber+1 {
			s.notifier.PublishDocumentEvent(ctx, "approval_required", doc.ID, actorID,
				[]string{level.ApproverID}, map[string]interface{}{
					"title": doc.Title,
					"level": level.LevelNumber,
				})
			return
		}
	}
}

func imageExt(mime string) string {
	if mime == "image/jpeg" {
		return ".jpg"
	}
	return ".png"
}
