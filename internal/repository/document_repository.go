package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/paperdesk/be-doc-approvals/internal/platform/database"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// DocumentRepository manages documents and the transactional writes that span
// a document, its levels and signature records. Document + level creation and
// decision commits are always done in a single transaction.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateWithLevels inserts a document and its full approval chain in one
// transaction. The chain is immutable after creation; resubmission forks a
// new document instead of mutating this one.
func (r *DocumentRepository) CreateWithLevels(ctx context.Context, doc *Document, levels []*ApprovalLevel) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		docQuery := `
			INSERT INTO documents
			    (id, title, doc_type, department, declared_format, status,
			     original_key, previous_document_id, submitted_by, version)
			VALUES ($1, $2, $3, $4, $5, $6::document_status,
			        $7, $8, $9, 1)
			RETURNING version, created_at, updated_at
		`

		err := tx.QueryRow(ctx, docQuery,
			doc.ID,
			doc.Title,
			doc.DocType,
			doc.Department,
			doc.DeclaredFormat,
			doc.Status,
			doc.OriginalKey,
			doc.PreviousDocumentID,
			doc.SubmittedBy,
		).Scan(&doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create document")
		}

		levelQuery := `
			INSERT INTO approval_levels
			    (document_id, level_number, required_role,
			     approver_id, approver_name, status)
			VALUES ($1, $2, $3, $4, $5, $6::level_status)
			RETURNING id, created_at, updated_at
		`

		for _, level := range levels {
			level.DocumentID = doc.ID

			err := tx.QueryRow(ctx, levelQuery,
				level.DocumentID,
				level.LevelNumber,
				level.RequiredRole,
				level.ApproverID,
				level.ApproverName,
				level.Status,
			).Scan(&level.ID, &level.CreatedAt, &level.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval level")
			}
		}

		return nil
	})
}

// GetByID retrieves a document by its primary key.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*Document, error) {
	query := `
		SELECT id, title, doc_type, department, declared_format, status,
		       original_key, signed_key, previous_document_id,
		       submitted_by, version, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	doc, err := r.scanDocument(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id)
	}
	return doc, err
}

// List returns documents filtered by optional department and status,
// newest first.
func (r *DocumentRepository) List(ctx context.Context, department, status *string, limit, offset int) ([]*Document, error) {
	query := `
		SELECT id, title, doc_type, department, declared_format, status,
		       original_key, signed_key, previous_document_id,
		       submitted_by, version, created_at, updated_at
		FROM documents
		WHERE ($1::text IS NULL OR department = $1)
		  AND ($2::text IS NULL OR status = $2::document_status)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, department, status, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list documents")
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := r.scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// CommitApproval commits one approve decision atomically: the signature
// record is inserted, the level moves to approved, and the document picks up
// its new status and signed artifact key. The document update is guarded by a
// version compare-and-swap; a concurrent decision that committed first makes
// this call fail with a conflict and nothing is written.
func (r *DocumentRepository) CommitApproval(
	ctx context.Context,
	doc *Document,
	level *ApprovalLevel,
	sig *SignatureRecord,
	newStatus DocumentStatus,
	signedKey string,
	comment *string,
) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		sigQuery := `
			INSERT INTO signature_records
			    (level_id, document_id, image_key, image_mime,
			     signer_id, signer_name, signer_role, signer_department,
			     artifact_sha256)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, signed_at
		`
		err := tx.QueryRow(ctx, sigQuery,
			level.ID,
			doc.ID,
			sig.ImageKey,
			sig.ImageMIME,
			sig.SignerID,
			sig.SignerName,
			sig.SignerRole,
			sig.SignerDepartment,
			sig.ArtifactSHA256,
		).Scan(&sig.ID, &sig.SignedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record signature")
		}

		levelQuery := `
			UPDATE approval_levels
			SET status       = 'approved'::level_status,
			    comment      = $2,
			    signature_id = $3,
			    decided_at   = NOW(),
			    updated_at   = NOW()
			WHERE id = $1
			  AND status = 'awaiting'::level_status
			RETURNING id
		`
		var levelID string
		err = tx.QueryRow(ctx, levelQuery, level.ID, comment, sig.ID).Scan(&levelID)
		if err == pgx.ErrNoRows {
			return errors.New(errors.ErrCodeConflict, "approval level already decided")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval level")
		}

		return r.casDocument(ctx, tx, doc, newStatus, &signedKey)
	})
}

// CommitHalt commits a reject or revision_requested decision atomically:
// the level takes the decision and the document halts in the matching status.
func (r *DocumentRepository) CommitHalt(
	ctx context.Context,
	doc *Document,
	level *ApprovalLevel,
	levelStatus LevelStatus,
	newStatus DocumentStatus,
	comment *string,
) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		levelQuery := `
			UPDATE approval_levels
			SET status     = $2::level_status,
			    comment    = $3,
			    decided_at = NOW(),
			    updated_at = NOW()
			WHERE id = $1
			  AND status = 'awaiting'::level_status
			RETURNING id
		`
		var levelID string
		err := tx.QueryRow(ctx, levelQuery, level.ID, levelStatus, comment).Scan(&levelID)
		if err == pgx.ErrNoRows {
			return errors.New(errors.ErrCodeConflict, "approval level already decided")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval level")
		}

		return r.casDocument(ctx, tx, doc, newStatus, nil)
	})
}

// casDocument applies the document status transition guarded by version.
func (r *DocumentRepository) casDocument(ctx context.Context, tx pgx.Tx, doc *Document, status DocumentStatus, signedKey *string) error {
	query := `
		UPDATE documents
		SET status     = $3::document_status,
		    signed_key = COALESCE($4, signed_key),
		    version    = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND version = $2
		RETURNING version, updated_at
	`
	err := tx.QueryRow(ctx, query, doc.ID, doc.Version, status, signedKey).
		Scan(&doc.Version, &doc.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "document changed concurrently, decision not applied")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update document")
	}
	doc.Status = status
	if signedKey != nil {
		doc.SignedKey = signedKey
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type documentScanner interface {
	Scan(dest ...any) error
}

func (r *DocumentRepository) scanDocument(row documentScanner) (*Document, error) {
	doc := &Document{}
	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.DocType,
		&doc.Department,
		&doc.DeclaredFormat,
		&doc.Status,
		&doc.OriginalKey,
		&doc.SignedKey,
		&doc.PreviousDocumentID,
		&doc.SubmittedBy,
		&doc.Version,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
