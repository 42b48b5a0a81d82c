package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/paperdesk/be-doc-approvals/internal/platform/database"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// RoutingRulesRepository handles CRUD for routing_rules.
type RoutingRulesRepository struct {
	db *database.DB
}

// NewRoutingRulesRepository creates a new RoutingRulesRepository.
func NewRoutingRulesRepository(db *database.DB) *RoutingRulesRepository {
	return &RoutingRulesRepository{db: db}
}

// Create inserts a new routing rule.
func (r *RoutingRulesRepository) Create(ctx context.Context, rule *RoutingRule) error {
	stepsJSON, err := json.Marshal(rule.ApprovalSteps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal approval steps")
	}

	query := `
		INSERT INTO routing_rules
		    (department, doc_type, is_active, approval_steps, priority)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		rule.Department,
		rule.DocType,
		rule.IsActive,
		stepsJSON,
		rule.Priority,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

// FindMatching returns the highest-priority active rule for a department and
// document type. Rules with a NULL doc_type match any type but rank below an
// exact type match at equal priority. Returns nil when no rule matches.
func (r *RoutingRulesRepository) FindMatching(ctx context.Context, department, docType string) (*RoutingRule, error) {
	query := `
		SELECT id, department, doc_type, is_active,
		       approval_steps, priority, created_at, updated_at
		FROM routing_rules
		WHERE department = $1
		  AND is_active = TRUE
		  AND (doc_type IS NULL OR doc_type = $2)
		ORDER BY priority ASC, doc_type NULLS LAST
		LIMIT 1
	`

	rule, err := r.scanRule(r.db.QueryRow(ctx, query, department, docType))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rule, err
}

// List returns all rules for a department, optionally filtered to active only.
func (r *RoutingRulesRepository) List(ctx context.Context, department string, activeOnly bool) ([]*RoutingRule, error) {
	query := `
		SELECT id, department, doc_type, is_active,
		       approval_steps, priority, created_at, updated_at
		FROM routing_rules
		WHERE department = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY priority ASC"

	rows, err := r.db.Query(ctx, query, department)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list routing rules")
	}
	defer rows.Close()

	var rules []*RoutingRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan routing rule")
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type ruleScanner interface {
	Scan(dest ...any) error
}

func (r *RoutingRulesRepository) scanRule(row ruleScanner) (*RoutingRule, error) {
	rule := &RoutingRule{}
	var stepsJSON []byte

	err := row.Scan(
		&rule.ID,
		&rule.Department,
		&rule.DocType,
		&rule.IsActive,
		&stepsJSON,
		&rule.Priority,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &rule.ApprovalSteps); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal approval steps")
		}
	}
	return rule, nil
}
