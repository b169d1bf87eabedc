package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"posledger/internal/dto"
	"posledger/internal/service"
)

const (
	QueueCashSync = "jobs:cash_sync"
	QueueReport   = "jobs:report"

	maxJobAttempts = 3
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

var _ service.JobDispatcher = (*Dispatcher)(nil)

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueCashSync pushes an account-payment echo job to Redis.
func (d *Dispatcher) EnqueueCashSync(ctx context.Context, job dto.CashSyncJob) error {
	return d.enqueue(ctx, QueueCashSync, "cash_sync", job, 0)
}

// EnqueueClosingReport pushes a post-close report job to Redis.
func (d *Dispatcher) EnqueueClosingReport(ctx context.Context, job dto.ClosingReportJob) error {
	return d.enqueue(ctx, QueueReport, "closing_report", job, 0)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}, attempts int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data, Attempts: attempts}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Handler processes one dequeued job payload. A nil return acks the job;
// an error wrapping service.ErrRetryable re-enqueues it, anything else goes
// to the DLQ.
type Handler interface {
	Process(ctx context.Context, payload json.RawMessage) error
}

// Handlers maps each queue to its processor.
type Handlers struct {
	CashSync Handler
	Report   Handler
}

// StartWorkerPool launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP — zero CPU when idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers Handlers) {
	d := &Dispatcher{rdb: rdb}
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, d, i, handlers)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, d *Dispatcher, id int, handlers Handlers) {
	queues := []string{QueueCashSync, QueueReport}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop — waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, rdb, d, handlers, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, rdb *redis.Client, d *Dispatcher, handlers Handlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}

	var h Handler
	switch queue {
	case QueueCashSync:
		h = handlers.CashSync
	case QueueReport:
		h = handlers.Report
	}
	if h == nil {
		log.Error().Str("queue", queue).Str("type", job.Type).Msg("no handler for queue")
		return
	}

	err := h.Process(ctx, job.Payload)
	if err == nil {
		return
	}

	if errors.Is(err, service.ErrRetryable) && job.Attempts+1 < maxJobAttempts {
		log.Warn().
			Str("queue", queue).
			Str("type", job.Type).
			Int("attempt", job.Attempts+1).
			Err(err).
			Msg("transient failure, re-enqueueing job")
		if reErr := d.enqueue(ctx, queue, job.Type, json.RawMessage(job.Payload), job.Attempts+1); reErr != nil {
			log.Error().Err(reErr).Str("queue", queue).Msg("failed to re-enqueue job")
			SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, reErr.Error(), job.Attempts+1)
		}
		return
	}

	SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, err.Error(), job.Attempts+1)
}
