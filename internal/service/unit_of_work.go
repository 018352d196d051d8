package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/uni-enroll-api/pkg/database"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
)

const tracerName = "github.com/noah-isme/uni-enroll-api/internal/service"

var tracer = otel.Tracer(tracerName)

// unitOfWork is satisfied by *database.TxManager.
type unitOfWork interface {
	WithinTx(ctx context.Context, fn database.TxFunc) error
}

// txFailure keeps domain errors raised inside a unit of work and reports anything else
// as a persistence failure; the transaction has already been rolled back either way.
func txFailure(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Persistence(err, message)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
