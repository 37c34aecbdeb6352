// Package terminal runs operator commands on tenant routers and keeps an
// audit log of every execution.
package terminal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/terminal"
	"mnetifi-service/internal/pkg/response"
	"mnetifi-service/internal/pkg/routeros"
	"mnetifi-service/internal/service/hotspot"
	"mnetifi-service/internal/service/invalidation"
)

type Repository interface {
	Record(ctx context.Context, res *terminal.Result) error
	MaxSequence(ctx context.Context, tenantID int64) (int64, error)
	History(ctx context.Context, tenantID int64, filters *terminal.HistoryFilters) ([]terminal.Result, int64, error)
}

type Hotspots interface {
	Resolve(ctx context.Context, tenantID, id int64) (*hotspot.Target, error)
}

type Runner interface {
	Run(ctx context.Context, t routeros.Target, cmds ...string) ([]routeros.Output, error)
}

type Counters interface {
	TerminalCommand(outcome string)
}

type TerminalService struct {
	repo        Repository
	hotspots    Hotspots
	runner      Runner
	rdb         *redis.Client
	counters    Counters
	invalidator invalidation.Invalidator
	logger      *zap.Logger
}

func NewTerminalService(repo Repository, hotspots Hotspots, runner Runner, rdb *redis.Client, counters Counters, invalidator invalidation.Invalidator, logger *zap.Logger) *TerminalService {
	return &TerminalService{
		repo:        repo,
		hotspots:    hotspots,
		runner:      runner,
		rdb:         rdb,
		counters:    counters,
		invalidator: invalidator,
		logger:      logger,
	}
}

func seqKey(tenantID int64) string {
	return fmt.Sprintf("terminal:seq:%d", tenantID)
}

// nextSequence hands out a per-tenant dispatch number. A missing counter is
// seeded from the audit log so numbers keep growing across Redis restarts.
func (s *TerminalService) nextSequence(ctx context.Context, tenantID int64) (int64, error) {
	key := seqKey(tenantID)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read terminal sequence: %w", err)
	}
	if n == 0 {
		max, err := s.repo.MaxSequence(ctx, tenantID)
		if err != nil {
			return 0, fmt.Errorf("failed to seed terminal sequence: %w", err)
		}
		if err := s.rdb.SetNX(ctx, key, max, 0).Err(); err != nil {
			return 0, fmt.Errorf("failed to seed terminal sequence: %w", err)
		}
	}
	return s.rdb.Incr(ctx, key).Result()
}

// Execute runs one command on a hotspot router. A command the router rejects
// or that times out still produces a recorded Result with Success false.
func (s *TerminalService) Execute(ctx context.Context, tenantID, identityID int64, req *terminal.ExecuteRequest) (*terminal.Result, error) {
	req.Command = strings.TrimSpace(req.Command)
	if err := req.Validate(); err != nil {
		if terminal.Denied(req.Command) {
			s.counters.TerminalCommand("denied")
			s.logger.Warn("terminal command denied",
				zap.Int64("tenant_id", tenantID),
				zap.Int64("identity_id", identityID),
				zap.String("command", req.Command),
			)
		}
		return nil, err
	}

	h, err := s.hotspots.Resolve(ctx, tenantID, req.HotspotID)
	if err != nil {
		return nil, err
	}

	seq, err := s.nextSequence(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	res := &terminal.Result{
		TenantID:   tenantID,
		HotspotID:  h.ID,
		Sequence:   seq,
		Command:    req.Command,
		ExecutedBy: identityID,
	}

	out, runErr := s.runner.Run(ctx, h.SSH(), req.Command)
	res.ExecutedAt = time.Now().UTC()
	if len(out) > 0 {
		res.Output = out[0].Text
	}
	res.Success = runErr == nil
	if runErr != nil {
		if res.Output == "" {
			res.Output = runErr.Error()
		}
		s.logger.Warn("terminal command failed",
			zap.Int64("tenant_id", tenantID),
			zap.Int64("hotspot_id", h.ID),
			zap.Int64("sequence", seq),
			zap.Error(runErr),
		)
	}

	// The command already ran; a failed audit write is logged, not returned.
	if err := s.repo.Record(context.WithoutCancel(ctx), res); err != nil {
		s.logger.Error("failed to record terminal command",
			zap.Int64("tenant_id", tenantID),
			zap.Int64("sequence", seq),
			zap.Error(err),
		)
	}

	outcome := "success"
	if !res.Success {
		outcome = "failed"
	}
	s.counters.TerminalCommand(outcome)
	s.invalidator.Invalidate(ctx, tenantID, resource.Terminal)
	return res, nil
}

func (s *TerminalService) History(ctx context.Context, tenantID int64, filters *terminal.HistoryFilters) (*response.Paginated, error) {
	items, total, err := s.repo.History(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	page := response.NewPaginated(items, total, filters.Page, filters.PageSize)
	return &page, nil
}

