package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/paperdesk/be-doc-approvals/internal/platform/database"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// ApprovalLevelsRepository handles reads on individual approval levels.
// Level creation and decision writes are owned by DocumentRepository so they
// always happen inside the document's transaction.
type ApprovalLevelsRepository struct {
	db *database.DB
}

// NewApprovalLevelsRepository creates a new ApprovalLevelsRepository.
func NewApprovalLevelsRepository(db *database.DB) *ApprovalLevelsRepository {
	return &ApprovalLevelsRepository{db: db}
}

// GetByDocumentID returns all levels for a document ordered by level_number.
func (r *ApprovalLevelsRepository) GetByDocumentID(ctx context.Context, documentID string) ([]*ApprovalLevel, error) {
	query := `
		SELECT id, document_id, level_number, required_role,
		       approver_id, approver_name,
		       status, comment, signature_id, decided_at,
		       created_at, updated_at
		FROM approval_levels
		WHERE document_id = $1
		ORDER BY level_number ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval levels")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetLevel returns the level at the given level_number within a document.
func (r *ApprovalLevelsRepository) GetLevel(ctx context.Context, documentID string, levelNumber int) (*ApprovalLevel, error) {
	query := `
		SELECT id, document_id, level_number, required_role,
		       approver_id, approver_name,
		       status, comment, signature_id, decided_at,
		       created_at, updated_at
		FROM approval_levels
		WHERE document_id = $1 AND level_number = $2
	`

	level, err := r.scanLevel(r.db.QueryRow(ctx, query, documentID, levelNumber))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_level", documentID)
	}
	return level, err
}

// GetPendingForApprover returns all awaiting levels assigned to an approver
// whose document is still actionable, oldest first.
func (r *ApprovalLevelsRepository) GetPendingForApprover(ctx context.Context, approverID string) ([]*ApprovalLevel, error) {
	query := `
		SELECT l.id, l.document_id, l.level_number, l.required_role,
		       l.approver_id, l.approver_name,
		       l.status, l.comment, l.signature_id, l.decided_at,
		       l.created_at, l.updated_at
		FROM approval_levels l
		JOIN documents d ON d.id = l.document_id
		WHERE l.approver_id = $1
		  AND l.status = 'awaiting'
		  AND d.status IN ('pending', 'in_review')
		ORDER BY l.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type levelScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalLevelsRepository) scanLevel(row levelScanner) (*ApprovalLevel, error) {
	l := &ApprovalLevel{}
	err := row.Scan(
		&l.ID,
		&l.DocumentID,
		&l.LevelNumber,
		&l.RequiredRole,
		&l.ApproverID,
		&l.ApproverName,
		&l.Status,
		&l.Comment,
		&l.SignatureID,
		&l.DecidedAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *ApprovalLevelsRepository) scanRows(rows pgx.Rows) ([]*ApprovalLevel, error) {
	var levels []*ApprovalLevel
	for rows.Next() {
		level, err := r.scanLevel(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval level")
		}
		levels = append(levels, level)
	}
	return levels, nil
}
