package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type roleStore interface {
	FindRole(ctx context.Context, tx *sqlx.Tx, id string) (models.Role, error)
	TransitionRole(ctx context.Context, tx *sqlx.Tx, id string, from, to models.Role) (bool, error)
}

// RolePromotionGate moves a person from USER to STUDENT once their first payment clears.
// Persons holding any other role are never overwritten.
type RolePromotionGate struct {
	roles   roleStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewRolePromotionGate constructs the gate.
func NewRolePromotionGate(roles roleStore, metrics *MetricsService, logger *zap.Logger) *RolePromotionGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolePromotionGate{roles: roles, metrics: metrics, logger: logger}
}

// PromoteToStudent runs inside the caller's transaction. It reports whether the role changed.
// A person that is already STUDENT is left alone; PROFESSOR and ADMIN yield FORBIDDEN.
func (g *RolePromotionGate) PromoteToStudent(ctx context.Context, tx *sqlx.Tx, personID string) (bool, error) {
	changed, err := g.roles.TransitionRole(ctx, tx, personID, models.RoleUser, models.RoleStudent)
	if err != nil {
		return false, err
	}
	if changed {
		g.metrics.RolePromoted()
		g.logger.Info("person promoted", zap.String("person_id", personID), zap.String("role", string(models.RoleStudent)))
		return true, nil
	}

	current, err := g.roles.FindRole(ctx, tx, personID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return false, err
	}
	switch current {
	case models.RoleStudent:
		return false, nil
	default:
		g.logger.Warn("role promotion refused", zap.String("person_id", personID), zap.String("role", string(current)))
		return false, appErrors.Clone(appErrors.ErrForbidden, "person holds a role that cannot become STUDENT")
	}
}
