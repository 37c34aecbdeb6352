package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"mnetifi-service/internal/worker/tasks"
)

// NewServer builds the asynq server with weighted queues. Payment receipts
// go through the critical queue.
func NewServer(redisOpt asynq.RedisClientOpt, concurrency int, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
				tasks.QueueLow:      1,
			},
			Logger:          logger.Sugar(),
			ShutdownTimeout: 20 * time.Second,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				if retried >= maxRetry {
					logger.Error("task exhausted retries",
						zap.String("type", t.Type()),
						zap.Int("retries", retried),
						zap.Error(err),
					)
				}
			}),
		},
	)
}
