package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/paperdesk/be-doc-approvals/internal/platform/database"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// SignatureRepository reads immutable signature records. Inserts are owned by
// DocumentRepository.CommitApproval so a record can never exist without the
// matching level decision.
type SignatureRepository struct {
	db *database.DB
}

// NewSignatureRepository creates a new SignatureRepository.
func NewSignatureRepository(db *database.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

// GetByID retrieves one signature record.
func (r *SignatureRepository) GetByID(ctx context.Context, id string) (*SignatureRecord, error) {
	query := `
		SELECT id, level_id, document_id, image_key, image_mime,
		       signer_id, signer_name, signer_role, signer_department,
		       artifact_sha256, signed_at
		FROM signature_records
		WHERE id = $1
	`

	sig, err := r.scanSignature(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("signature_record", id)
	}
	return sig, err
}

// GetByDocumentID returns all signatures on a document in level order. The
// embedder replays these ahead of the newest signature so every signed
// artifact is rebuilt from the clean base.
func (r *SignatureRepository) GetByDocumentID(ctx context.Context, documentID string) ([]*SignatureRecord, error) {
	query := `
		SELECT s.id, s.level_id, s.document_id, s.image_key, s.image_mime,
		       s.signer_id, s.signer_name, s.signer_role, s.signer_department,
		       s.artifact_sha256, s.signed_at
		FROM signature_records s
		JOIN approval_levels l ON l.id = s.level_id
		WHERE s.document_id = $1
		ORDER BY l.level_number ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get signature records")
	}
	defer rows.Close()

	var sigs []*SignatureRecord
	for rows.Next() {
		sig, err := r.scanSignature(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan signature record")
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type signatureScanner interface {
	Scan(dest ...any) error
}

func (r *SignatureRepository) scanSignature(row signatureScanner) (*SignatureRecord, error) {
	s := &SignatureRecord{}
	err := row.Scan(
		&s.ID,
		&s.LevelID,
		&s.DocumentID,
		&s.ImageKey,
		&s.ImageMIME,
		&s.SignerID,
		&s.SignerName,
		&s.SignerRole,
		&s.SignerDepartment,
		&s.ArtifactSHA256,
		&s.SignedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
