// Package tasks names the background jobs and builds their payloads. The API
// enqueues through Enqueuer; cmd/worker serves them.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/transaction"
	"mnetifi-service/internal/domain/voucher"
	"mnetifi-service/internal/domain/walledgarden"
)

// Task Types
const (
	TypeVoucherGenerate      = "voucher:generate"
	TypeSMSSend              = "sms:send"
	TypeEmailSend            = "email:send"
	TypeTransactionReconcile = "transaction:reconcile"
	TypeWalledGardenSync     = "walled-garden:sync"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ReconcileDelay is how long after an STK push the payment is re-checked.
const ReconcileDelay = 2 * time.Minute

// SMSPayload is one outbound text through the tenant's SMS account.
type SMSPayload struct {
	TenantID int64  `json:"tenant_id"`
	Phone    string `json:"phone"`
	Message  string `json:"message"`
}

// EmailPayload is one outbound HTML email.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func newTask(typ string, payload interface{}, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data, opts...), nil
}

func NewVoucherGenerateTask(p voucher.GenerateTask) (*asynq.Task, error) {
	return newTask(TypeVoucherGenerate, p, asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.Timeout(5*time.Minute))
}

func NewSMSTask(p SMSPayload) (*asynq.Task, error) {
	return newTask(TypeSMSSend, p, asynq.Queue(QueueCritical), asynq.MaxRetry(5))
}

func NewEmailTask(p EmailPayload) (*asynq.Task, error) {
	return newTask(TypeEmailSend, p, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
}

func NewReconcileTask(p transaction.ReconcileTask) (*asynq.Task, error) {
	return newTask(TypeTransactionReconcile, p, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

func NewWalledGardenSyncTask(p walledgarden.SyncTask) (*asynq.Task, error) {
	return newTask(TypeWalledGardenSync, p, asynq.Queue(QueueLow), asynq.MaxRetry(3))
}

// Decode unmarshals a task payload; a malformed payload is never retried.
func Decode(t *asynq.Task, v interface{}) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// Enqueuer puts tasks on the asynq queues.
type Enqueuer struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewEnqueuer(client *asynq.Client, logger *zap.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// enqueue treats a task id conflict as success so retried requests do not
// double-queue work.
func (e *Enqueuer) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	e.logger.Debug("task enqueued", zap.String("type", info.Type), zap.String("id", info.ID), zap.String("queue", info.Queue))
	return nil
}

func (e *Enqueuer) EnqueueVoucherGeneration(ctx context.Context, tenantID, batchID int64) error {
	t, err := NewVoucherGenerateTask(voucher.GenerateTask{TenantID: tenantID, BatchID: batchID})
	if err != nil {
		return fmt.Errorf("failed to build voucher task: %w", err)
	}
	return e.enqueue(ctx, t, asynq.TaskID(fmt.Sprintf("voucher-generate:%d", batchID)))
}

func (e *Enqueuer) EnqueueSMS(ctx context.Context, tenantID int64, phone, message string) error {
	t, err := NewSMSTask(SMSPayload{TenantID: tenantID, Phone: phone, Message: message})
	if err != nil {
		return fmt.Errorf("failed to build sms task: %w", err)
	}
	return e.enqueue(ctx, t)
}

func (e *Enqueuer) EnqueueEmail(ctx context.Context, to, subject, html string) error {
	t, err := NewEmailTask(EmailPayload{To: to, Subject: subject, HTML: html})
	if err != nil {
		return fmt.Errorf("failed to build email task: %w", err)
	}
	return e.enqueue(ctx, t)
}

func (e *Enqueuer) EnqueueReconcile(ctx context.Context, tenantID, transactionID int64) error {
	t, err := NewReconcileTask(transaction.ReconcileTask{TenantID: tenantID, TransactionID: transactionID})
	if err != nil {
		return fmt.Errorf("failed to build reconcile task: %w", err)
	}
	return e.enqueue(ctx, t,
		asynq.ProcessIn(ReconcileDelay),
		asynq.TaskID(fmt.Sprintf("reconcile:%d", transactionID)),
	)
}

func (e *Enqueuer) EnqueueWalledGardenSync(ctx context.Context, tenantID int64, hotspotID *int64) error {
	t, err := NewWalledGardenSyncTask(walledgarden.SyncTask{TenantID: tenantID, HotspotID: hotspotID})
	if err != nil {
		return fmt.Errorf("failed to build walled garden task: %w", err)
	}
	return e.enqueue(ctx, t)
}
