// Package worker serves the background jobs queued by the API.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/domain/transaction"
	"mnetifi-service/internal/domain/voucher"
	"mnetifi-service/internal/domain/walledgarden"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/routeros"
	"mnetifi-service/internal/pkg/sms"
	"mnetifi-service/internal/service/hotspot"
	"mnetifi-service/internal/worker/tasks"
)

type VoucherGenerator interface {
	Generate(ctx context.Context, tenantID, batchID int64) error
}

type CredentialSource interface {
	Credentials(ctx context.Context, tenantID int64) (tenant.Credentials, error)
}

type SMSSender interface {
	Send(ctx context.Context, acct sms.Account, phone, message string) (string, error)
}

type Mailer interface {
	Configured() bool
	Send(to, subject, bodyHTML string) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, tenantID, id int64) (*transaction.Transaction, error)
}

type GardenSource interface {
	ListEntries(ctx context.Context, tenantID int64) ([]walledgarden.Entry, error)
}

type Routers interface {
	Resolve(ctx context.Context, tenantID, id int64) (*hotspot.Target, error)
	ActiveTargets(ctx context.Context, tenantID int64) ([]hotspot.Target, error)
}

type Runner interface {
	Run(ctx context.Context, t routeros.Target, cmds ...string) ([]routeros.Output, error)
}

type Counters interface {
	JobProcessed(task, outcome string)
}

type Deps struct {
	Vouchers     VoucherGenerator
	Credentials  CredentialSource
	SMS          SMSSender
	Mailer       Mailer
	Transactions Reconciler
	Garden       GardenSource
	Routers      Routers
	Runner       Runner
	Counters     Counters
	Logger       *zap.Logger
}

// Processor holds one handler per task type.
type Processor struct {
	Deps
}

func NewProcessor(d Deps) *Processor {
	return &Processor{Deps: d}
}

// Register mounts every handler on mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeVoucherGenerate, p.instrument(tasks.TypeVoucherGenerate, p.HandleVoucherGenerate))
	mux.HandleFunc(tasks.TypeSMSSend, p.instrument(tasks.TypeSMSSend, p.HandleSMSSend))
	mux.HandleFunc(tasks.TypeEmailSend, p.instrument(tasks.TypeEmailSend, p.HandleEmailSend))
	mux.HandleFunc(tasks.TypeTransactionReconcile, p.instrument(tasks.TypeTransactionReconcile, p.HandleReconcile))
	mux.HandleFunc(tasks.TypeWalledGardenSync, p.instrument(tasks.TypeWalledGardenSync, p.HandleWalledGardenSync))
}

func (p *Processor) instrument(typ string, fn asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		err := fn(ctx, t)
		outcome := "success"
		if err != nil {
			outcome = "failed"
			p.Logger.Warn("task failed", zap.String("type", typ), zap.Error(err))
		}
		p.Counters.JobProcessed(typ, outcome)
		return err
	}
}

func (p *Processor) HandleVoucherGenerate(ctx context.Context, t *asynq.Task) error {
	var payload voucher.GenerateTask
	if err := tasks.Decode(t, &payload); err != nil {
		return err
	}
	return p.Vouchers.Generate(ctx, payload.TenantID, payload.BatchID)
}

// HandleSMSSend drops the message when the tenant has no SMS account.
func (p *Processor) HandleSMSSend(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SMSPayload
	if err := tasks.Decode(t, &payload); err != nil {
		return err
	}
	creds, err := p.Credentials.Credentials(ctx, payload.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load sms credentials: %w", err)
	}
	if !creds.HasSMS() {
		p.Logger.Info("sms skipped, tenant has no sms account", zap.Int64("tenant_id", payload.TenantID))
		return nil
	}
	id, err := p.SMS.Send(ctx, sms.Account{
		Username: creds.SMSUsername,
		APIKey:   creds.SMSAPIKey,
		SenderID: creds.SMSSenderID,
	}, payload.Phone, payload.Message)
	if err != nil {
		return err
	}
	p.Logger.Info("sms sent", zap.Int64("tenant_id", payload.TenantID), zap.String("message_id", id))
	return nil
}

func (p *Processor) HandleEmailSend(ctx context.Context, t *asynq.Task) error {
	var payload tasks.EmailPayload
	if err := tasks.Decode(t, &payload); err != nil {
		return err
	}
	if !p.Mailer.Configured() {
		p.Logger.Warn("email skipped, smtp not configured", zap.String("subject", payload.Subject))
		return nil
	}
	return p.Mailer.Send(payload.To, payload.Subject, payload.HTML)
}

// HandleReconcile re-checks a payment. A transaction that no longer exists
// is not retried.
func (p *Processor) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	var payload transaction.ReconcileTask
	if err := tasks.Decode(t, &payload); err != nil {
		return err
	}
	txn, err := p.Transactions.Reconcile(ctx, payload.TenantID, payload.TransactionID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return fmt.Errorf("transaction %d: %w", payload.TransactionID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	p.Logger.Info("transaction reconciled",
		zap.Int64("transaction_id", txn.ID),
		zap.String("status", string(txn.Status)),
		zap.String("reconciliation", string(txn.ReconciliationStatus)),
	)
	return nil
}

// HandleWalledGardenSync pushes the tenant's walled garden to one router or
// to every active router. Each router is attempted; the task fails when any
// of them did.
func (p *Processor) HandleWalledGardenSync(ctx context.Context, t *asynq.Task) error {
	var payload walledgarden.SyncTask
	if err := tasks.Decode(t, &payload); err != nil {
		return err
	}
	entries, err := p.Garden.ListEntries(ctx, payload.TenantID)
	if err != nil {
		return err
	}

	var targets []hotspot.Target
	if payload.HotspotID != nil {
		h, err := p.Routers.Resolve(ctx, payload.TenantID, *payload.HotspotID)
		if errors.Is(err, xerrors.ErrNotFound) {
			return fmt.Errorf("hotspot %d: %w", *payload.HotspotID, asynq.SkipRetry)
		}
		if err != nil {
			return err
		}
		targets = []hotspot.Target{*h}
	} else if targets, err = p.Routers.ActiveTargets(ctx, payload.TenantID); err != nil {
		return err
	}

	cmds := walledgarden.RouterCommands(entries)
	var errs []error
	for i := range targets {
		h := &targets[i]
		if _, err := p.Runner.Run(ctx, h.SSH(), cmds...); err != nil {
			p.Logger.Warn("walled garden sync failed",
				zap.Int64("tenant_id", payload.TenantID),
				zap.Int64("hotspot_id", h.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("hotspot %d: %w", h.ID, err))
			continue
		}
		p.Logger.Info("walled garden synced",
			zap.Int64("tenant_id", payload.TenantID),
			zap.Int64("hotspot_id", h.ID),
			zap.Int("entries", len(cmds)-1),
		)
	}
	return errors.Join(errs...)
}
