package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/service"
	"github.com/noah-isme/uni-enroll-api/pkg/response"
)

type personService interface {
	UpdateRole(ctx context.Context, actor models.Actor, personID string, req service.UpdateRoleRequest) (*models.Person, error)
}

// PersonHandler exposes administrative person edits.
type PersonHandler struct {
	persons personService
}

// NewPersonHandler constructs PersonHandler.
func NewPersonHandler(persons personService) *PersonHandler {
	return &PersonHandler{persons: persons}
}

// UpdateRole godoc
// @Summary Change a person's role
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Person ID"
// @Param payload body service.UpdateRoleRequest true "New role"
// @Success 200 {object} response.Envelope
// @Router /admin/persons/{id}/role [put]
func (h *PersonHandler) UpdateRole(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	person, err := h.persons.UpdateRole(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}
