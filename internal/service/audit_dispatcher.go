package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/pkg/jobs"
)

// AuditDispatcher writes audit logs that belong to a transaction inline and hands the rest
// to a background queue so request latency does not include the audit insert.
type AuditDispatcher struct {
	store  auditWriter
	queue  *jobs.Queue[*models.AuditLog]
	logger *zap.Logger
}

// NewAuditDispatcher constructs an AuditDispatcher. Call Start before serving traffic and Stop on shutdown.
func NewAuditDispatcher(store auditWriter, cfg jobs.QueueConfig) *AuditDispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &AuditDispatcher{store: store, logger: cfg.Logger}
	d.queue = jobs.NewQueue("audit", d.handle, cfg)
	return d
}

// Start launches the audit workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop flushes queued audit logs.
func (d *AuditDispatcher) Stop() {
	d.queue.Stop()
}

// Create records log. With a transaction the write is synchronous so it commits or rolls back
// with the surrounding work. Without one the log is queued, falling back to a direct write
// when the queue cannot take it.
func (d *AuditDispatcher) Create(ctx context.Context, tx *sqlx.Tx, log *models.AuditLog) error {
	if tx != nil {
		return d.store.Create(ctx, tx, log)
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if err := d.queue.TryEnqueue(jobs.Job[*models.AuditLog]{ID: log.ID, Payload: log}); err != nil {
		d.logger.Debug("audit queue unavailable, writing inline", zap.String("action", log.Action), zap.Error(err))
		return d.store.Create(ctx, nil, log)
	}
	return nil
}

func (d *AuditDispatcher) handle(ctx context.Context, job jobs.Job[*models.AuditLog]) error {
	return d.store.Create(ctx, nil, job.Payload)
}
