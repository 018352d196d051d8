package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

type personRoleRepository interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
}

// UpdateRoleRequest is the admin payload for changing a role.
type UpdateRoleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=ADMIN USER STUDENT PROFESSOR"`
}

// PersonService covers administrative edits on persons.
type PersonService struct {
	repo      personRoleRepository
	audits    auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPersonService constructs PersonService.
func NewPersonService(repo personRoleRepository, audits auditWriter, validate *validator.Validate, logger *zap.Logger) *PersonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonService{repo: repo, audits: audits, validator: validate, logger: logger}
}

// UpdateRole overwrites a person's role. Only admins reach this through the router.
func (s *PersonService) UpdateRole(ctx context.Context, actor models.Actor, personID string, req UpdateRoleRequest) (*models.Person, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	person, err := s.repo.FindByID(ctx, personID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	previous := person.Role
	if previous == req.Role {
		return person, nil
	}

	if err := s.repo.UpdateRole(ctx, personID, req.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	person.Role = req.Role

	s.logger.Info("person role changed",
		zap.String("person_id", personID),
		zap.String("from", string(previous)),
		zap.String("to", string(req.Role)),
		zap.String("actor_id", actor.PersonID),
	)
	if s.audits != nil {
		entry, err := newAuditLog(actor.PersonID, models.AuditActionRoleChange, "person", personID,
			map[string]models.Role{"role": previous}, map[string]models.Role{"role": req.Role})
		if err == nil {
			err = s.audits.Create(ctx, nil, entry)
		}
		if err != nil {
			s.logger.Warn("failed to record role change audit log", zap.Error(err))
		}
	}
	return person, nil
}
