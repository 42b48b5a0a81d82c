package repository

import "time"

// ── Domain types for the document approval chain ─────────────────────────────

// DocumentStatus is the document lifecycle state. It is derived exclusively
// from the aggregate of the document's level statuses.
type DocumentStatus string

const (
	DocumentPending           DocumentStatus = "pending"
	DocumentInReview          DocumentStatus = "in_review"
	DocumentApproved          DocumentStatus = "approved"
	DocumentRejected          DocumentStatus = "rejected"
	DocumentRevisionRequested DocumentStatus = "revision_requested"
)

// Terminal reports whether no further level decisions are accepted.
// revision_requested is recoverable only by resubmitting as a new document.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentApproved || s == DocumentRejected || s == DocumentRevisionRequested
}

// LevelStatus is the per-level decision state.
type LevelStatus string

const (
	LevelAwaiting          LevelStatus = "awaiting"
	LevelApproved          LevelStatus = "approved"
	LevelRejected          LevelStatus = "rejected"
	LevelRevisionRequested LevelStatus = "revision_requested"
)

// Decided reports whether the level already carries a terminal decision.
func (s LevelStatus) Decided() bool {
	return s != LevelAwaiting
}

// Document is one submitted document plus its lifecycle state.
// Version is bumped on every decision and used as a compare-and-swap guard
// so concurrent decisions on the same document cannot both commit.
type Document struct {
	ID                 string
	Title              string
	DocType            string
	Department         string
	DeclaredFormat     string // original upload extension, kept for download labeling
	Status             DocumentStatus
	OriginalKey        string
	SignedKey          *string // nil until first approval embeds a signature
	PreviousDocumentID *string // set when resubmitted after revision_requested
	SubmittedBy        string
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ApprovalLevel is one stage in a document's sign-off chain. Levels are
// numbered 1..N with no gaps; level k may only be decided once level k-1
// is approved.
type ApprovalLevel struct {
	ID           string
	DocumentID   string
	LevelNumber  int
	RequiredRole string
	ApproverID   string
	ApproverName string
	Status       LevelStatus
	Comment      *string
	SignatureID  *string
	DecidedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SignatureRecord is the immutable record of one embedded signature.
// Signer identity is denormalized at signing time so later role changes do
// not retroactively alter history. The table is insert-only.
type SignatureRecord struct {
	ID               string
	LevelID          string
	DocumentID       string
	ImageKey         string
	ImageMIME        string
	SignerID         string
	SignerName       string
	SignerRole       string
	SignerDepartment string
	ArtifactSHA256   string
	SignedAt         time.Time
}

// RoutingRuleStep is one entry in a routing rule's approval_steps JSONB array.
type RoutingRuleStep struct {
	Step     int    `json:"step"`
	Role     string `json:"role"`
	Required bool   `json:"required"`
}

// RoutingRule maps a department (and optionally a document type) to its
// ordered chain of required approval roles.
type RoutingRule struct {
	ID            string
	Department    string
	DocType       *string // nil = matches any document type
	IsActive      bool
	ApprovalSteps []RoutingRuleStep
	Priority      int // lower = evaluated first
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RoleAssignment is one active occupant of a role within a department.
// The chain resolver reads this roster to bind levels to principals.
type RoleAssignment struct {
	ID            string
	Department    string
	Role          string
	PrincipalID   string
	PrincipalName string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuditEntry is one immutable record in the decision audit log.
type AuditEntry struct {
	ID           string
	DocumentID   string
	LevelID      *string
	Action       string // submitted | approved | rejected | revision_requested
	PerformedBy  string
	PerformedAt  time.Time
	StatusBefore *string
	StatusAfter  *string
	Metadata     map[string]interface{}
}
