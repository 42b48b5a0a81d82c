package service

import (
	"context"

	"github.com/paperdesk/be-doc-approvals/internal/repository"
	"github.com/paperdesk/be-doc-approvals/internal/sign"
	"github.com/paperdesk/be-doc-approvals/internal/storage"
)

// Narrow interfaces over the repository and pipeline collaborators, so the
// services can be exercised against in-memory fakes.

// DocumentRepo is the aggregate-root store: document reads plus the
// transactional decision commits.
type DocumentRepo interface {
	CreateWithLevels(ctx context.Context, doc *repository.Document, levels []*repository.ApprovalLevel) error
	GetByID(ctx context.Context, id string) (*repository.Document, error)
	List(ctx context.Context, department, status *string, limit, offset int) ([]*repository.Document, error)
	CommitApproval(ctx context.Context, doc *repository.Document, level *repository.ApprovalLevel,
		sig *repository.SignatureRecord, newStatus repository.DocumentStatus, signedKey string, comment *string) error
	CommitHalt(ctx context.Context, doc *repository.Document, level *repository.ApprovalLevel,
		levelStatus repository.LevelStatus, newStatus repository.DocumentStatus, comment *string) error
}

// LevelsRepo reads approval levels.
type LevelsRepo interface {
	GetByDocumentID(ctx context.Context, documentID string) ([]*repository.ApprovalLevel, error)
	GetPendingForApprover(ctx context.Context, approverID string) ([]*repository.ApprovalLevel, error)
}

// SignaturesRepo reads immutable signature records.
type SignaturesRepo interface {
	GetByDocumentID(ctx context.Context, documentID string) ([]*repository.SignatureRecord, error)
}

// RulesRepo resolves the routing rule for a submission.
type RulesRepo interface {
	FindMatching(ctx context.Context, department, docType string) (*repository.RoutingRule, error)
}

// RolesRepo reads the role roster.
type RolesRepo interface {
	GetActiveByRole(ctx context.Context, department, role string) ([]*repository.RoleAssignment, error)
}

// AuditRepo appends immutable audit entries.
type AuditRepo interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByDocumentID(ctx context.Context, documentID string) ([]*repository.AuditEntry, error)
}

// ArtifactStore persists and serves artifact bytes.
type ArtifactStore interface {
	Key(documentID string, kind storage.Kind, name string) string
	Put(ctx context.Context, documentID string, kind storage.Kind, name string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Converter renders non-PDF sources to PDF through the bounded worker pool.
type Converter interface {
	Convert(ctx context.Context, src []byte, ext string) ([]byte, error)
}

// Embedder composites signature images onto a PDF.
type Embedder interface {
	PageCount(base []byte) (int, error)
	Embed(base []byte, sigs []sign.PlacedSignature) ([]byte, error)
}

// Notifier publishes workflow events for the external notification service.
// Implementations must be non-fatal: delivery failures never interrupt an
// approval operation.
type Notifier interface {
	PublishDocumentEvent(ctx context.Context, eventType, documentID, actorID string,
		recipients []string, payload map[string]interface{})
}
