package repository

import (
	"context"

	"github.com/paperdesk/be-doc-approvals/internal/platform/database"
	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// RoleAssignmentsRepository reads the role roster the chain resolver binds
// approval levels against. Roster maintenance lives in the admin surface of
// the platform, not in this service.
type RoleAssignmentsRepository struct {
	db *database.DB
}

// NewRoleAssignmentsRepository creates a new RoleAssignmentsRepository.
func NewRoleAssignmentsRepository(db *database.DB) *RoleAssignmentsRepository {
	return &RoleAssignmentsRepository{db: db}
}

// GetActiveByRole returns active occupants of a role within a department,
// ordered by principal_id so resolution is deterministic for a fixed roster.
func (r *RoleAssignmentsRepository) GetActiveByRole(ctx context.Context, department, role string) ([]*RoleAssignment, error) {
	query := `
		SELECT id, department, role, principal_id, principal_name,
		       is_active, created_at, updated_at
		FROM role_assignments
		WHERE department = $1
		  AND role = $2
		  AND is_active = TRUE
		ORDER BY principal_id ASC
	`

	rows, err := r.db.Query(ctx, query, department, role)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get role assignments")
	}
	defer rows.Close()

	var assignments []*RoleAssignment
	for rows.Next() {
		a := &RoleAssignment{}
		err := rows.Scan(
			&a.ID,
			&a.Department,
			&a.Role,
			&a.PrincipalID,
			&a.PrincipalName,
			&a.IsActive,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan role assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}
