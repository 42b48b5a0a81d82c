package service

import (
	"context"
	"fmt"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
	"github.com/paperdesk/be-doc-approvals/internal/platform/logger"
	"github.com/paperdesk/be-doc-approvals/internal/repository"
)

// defaultChainRole is used when no routing rule matches the submission.
const defaultChainRole = "DEPARTMENT_HEAD"

// NoApproverConfiguredError reports a required role with no active occupant.
// Surfaced to the submitter at submission time; silently skipping the level
// would break sequential gating.
type NoApproverConfiguredError struct {
	Department string
	Role       string
}

func (e *NoApproverConfiguredError) Error() string {
	return fmt.Sprintf("no active approver for role %s in department %s", e.Role, e.Department)
}

// ResolvedLevel is one bound entry of a document's approval chain.
type ResolvedLevel struct {
	LevelNumber   int
	Role          string
	PrincipalID   string
	PrincipalName string
}

// ChainResolver computes the ordered approver chain for a submission from
// the routing rules and the role roster. Resolution is deterministic and
// idempotent for a fixed roster snapshot.
type ChainResolver struct {
	rulesRepo RulesRepo
	rolesRepo RolesRepo
	log       *logger.Logger
}

// NewChainResolver creates a new ChainResolver.
func NewChainResolver(rulesRepo RulesRepo, rolesRepo RolesRepo, log *logger.Logger) *ChainResolver {
	return &ChainResolver{
		rulesRepo: rulesRepo,
		rolesRepo: rolesRepo,
		log:       log,
	}
}

// Resolve returns the ordered, non-empty chain for a document type and
// department. Level numbers are renumbered 1..N with no gaps after optional
// unstaffable steps are dropped.
func (r *ChainResolver) Resolve(ctx context.Context, docType, department string) ([]ResolvedLevel, error) {
	rule, err := r.rulesRepo.FindMatching(ctx, department, docType)
	if err != nil {
		return nil, err
	}
	stepDefs := resolveStepDefs(rule)

	var chain []ResolvedLevel
	for _, def := range stepDefs {
		occupants, err := r.rolesRepo.GetActiveByRole(ctx, department, def.Role)
		if err != nil {
			return nil, err
		}
		if len(occupants) == 0 {
			if !def.Required {
				r.log.Debug().
					Str("department", department).
					Str("role", def.Role).
					Msg("optional approval step has no occupant, dropped from chain")
				continue
			}
			return nil, errors.Wrap(
				&NoApproverConfiguredError{Department: department, Role: def.Role},
				errors.ErrCodeConflict, "approval chain cannot be built")
		}

		// Lowest principal_id wins when several occupants hold the role, so
		// two resolutions against the same roster bind the same person.
		occupant := occupants[0]
		chain = append(chain, ResolvedLevel{
			LevelNumber:   len(chain) + 1,
			Role:          def.Role,
			PrincipalID:   occupant.PrincipalID,
			PrincipalName: occupant.PrincipalName,
		})
	}

	if len(chain) == 0 {
		return nil, errors.Wrap(
			&NoApproverConfiguredError{Department: department, Role: defaultChainRole},
			errors.ErrCodeConflict, "approval chain cannot be built")
	}
	return chain, nil
}

// resolveStepDefs returns the ordered step definitions from a rule, or a
// single default step when no rule matched.
func resolveStepDefs(rule *repository.RoutingRule) []repository.RoutingRuleStep {
	if rule != nil && len(rule.ApprovalSteps) > 0 {
		return rule.ApprovalSteps
	}
	return []repository.RoutingRuleStep{
		{Step: 1, Role: defaultChainRole, Required: true},
	}
}
