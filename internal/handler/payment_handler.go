package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/service"
	"github.com/noah-isme/uni-enroll-api/pkg/response"
)

type paymentService interface {
	CompletePayment(ctx context.Context, actor models.Actor, enrollmentID string, req service.CompletePaymentRequest) (*service.PaymentResult, error)
	Receipt(ctx context.Context, actor models.Actor, enrollmentID string) (*service.ExportFile, error)
}

// PaymentHandler exposes fee payment endpoints.
type PaymentHandler struct {
	payments paymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Complete godoc
// @Summary Pay the enrollment fee
// @Description A repeated submission answers 200 with meta.already_paid and the original fee.
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Param payload body service.CompletePaymentRequest true "Payment method"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /enrollments/{id}/payment [post]
func (h *PaymentHandler) Complete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CompletePaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.payments.CompletePayment(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := response.Meta{"already_paid": result.AlreadyPaid, "promoted": result.Promoted}
	if result.AlreadyPaid {
		response.JSON(c, http.StatusOK, result, nil, meta)
		return
	}
	response.Created(c, result, meta)
}

// Receipt godoc
// @Summary Download the payment receipt
// @Tags Payments
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {file} file
// @Router /enrollments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	file, err := h.payments.Receipt(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.ContentType, file.Filename, file.Body)
}
