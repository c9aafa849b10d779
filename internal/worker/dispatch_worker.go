package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/events"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TaskDispatch = "dispatch"

// Dispatcher hands a paid order to report generation.
type Dispatcher interface {
	Dispatch(ctx context.Context, orderID int64) error
}

// DispatchWorker consumes dispatch jobs. Jobs are durable in the job_queue
// table; redis and an in-memory channel only speed up pickup.
type DispatchWorker struct {
	jobs          domain.JobRepository
	orders        domain.OrderRepository
	dispatcher    Dispatcher
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.Job
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	concurrency   int
	logger        *zerolog.Logger
}

// NewDispatchWorker builds a worker with sane defaults.
func NewDispatchWorker(
	jobs domain.JobRepository,
	orders domain.OrderRepository,
	dispatcher Dispatcher,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *DispatchWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	l := logger.With().Str("component", "dispatch_worker").Logger()

	return &DispatchWorker{
		jobs:          jobs,
		orders:        orders,
		dispatcher:    dispatcher,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.Job, 128),
		redisQueueKey: "dispatch:queue",
		deadLetterKey: "dispatch:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		concurrency:   2,
		logger:        &l,
	}
}

// WithConcurrency sets the number of parallel consumers.
func (w *DispatchWorker) WithConcurrency(n int) *DispatchWorker {
	if n > 0 {
		w.concurrency = n
	}
	return w
}

// EnqueueDispatch persists a dispatch job for the order. An order that
// already has a live job is not queued twice.
func (w *DispatchWorker) EnqueueDispatch(ctx context.Context, orderID int64) error {
	if orderID == 0 {
		return errors.New("order id is required")
	}
	job := models.Job{TaskType: TaskDispatch, OrderID: orderID, Payload: "{}", Status: models.JobPending}
	if err := w.jobs.CreateJob(ctx, &job); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			w.logger.Debug().Int64("order_id", orderID).Msg("dispatch already queued")
			return nil
		}
		return fmt.Errorf("persist dispatch job: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, job); err != nil {
			w.logger.Warn().Err(err).Int64("job_id", job.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- job:
	default:
		w.logger.Warn().Int64("job_id", job.ID).Msg("in-memory queue full, job left to polling")
	}
	return nil
}

// HandleOrderPaid is the order_paid subscriber.
func (w *DispatchWorker) HandleOrderPaid(e *events.Event) error {
	var payload events.OrderEventPayload
	if err := e.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return w.EnqueueDispatch(context.Background(), payload.OrderID)
}

// Recover returns interrupted jobs to the queue and enqueues paid orders
// that have no live job.
func (w *DispatchWorker) Recover(ctx context.Context) error {
	n, err := w.jobs.RequeueProcessingJobs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info().Int64("count", n).Msg("Requeued interrupted jobs")
	}

	orders, err := w.orders.ListOrdersByStatus(ctx, models.OrderPaid, 1000)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := w.EnqueueDispatch(ctx, o.ID); err != nil {
			w.logger.Error().Err(err).Int64("order_id", o.ID).Msg("failed to re-enqueue paid order")
		}
	}
	return nil
}

// Start recovers and runs the consumers until ctx is done.
func (w *DispatchWorker) Start(ctx context.Context) error {
	if err := w.Recover(ctx); err != nil {
		w.logger.Error().Err(err).Msg("dispatch recovery failed")
	}

	w.logger.Info().Int("concurrency", w.concurrency).Msg("dispatch worker started")
	defer w.logger.Info().Msg("dispatch worker stopped")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (w *DispatchWorker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if job, ok := w.tryLocalQueue(); ok {
			w.processJob(ctx, &job)
			continue
		}

		if job, ok := w.tryRedis(ctx); ok {
			w.processJob(ctx, &job)
			continue
		}

		jobs, err := w.jobs.GetPendingJobs(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending jobs")
			w.sleep(ctx)
			continue
		}
		if len(jobs) == 0 {
			w.sleep(ctx)
			continue
		}
		for i := range jobs {
			w.processJob(ctx, &jobs[i])
		}
	}
}

func (w *DispatchWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *DispatchWorker) tryLocalQueue() (models.Job, bool) {
	select {
	case j := <-w.queue:
		return j, true
	default:
		return models.Job{}, false
	}
}

func (w *DispatchWorker) tryRedis(ctx context.Context) (models.Job, bool) {
	if w.redis == nil {
		return models.Job{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.Job{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.Job{}, false
	}
	if len(res) != 2 {
		return models.Job{}, false
	}
	var job models.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		w.logger.Error().Err(err).Msg("decode redis job")
		return models.Job{}, false
	}
	return job, true
}

func (w *DispatchWorker) processJob(ctx context.Context, job *models.Job) {
	if err := w.jobs.ClaimJob(ctx, job.ID); err != nil {
		if !errors.Is(err, database.ErrConcurrentModification) {
			w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("claim job")
		}
		return
	}
	// копия из redis может быть устаревшей
	if fresh, err := w.jobs.GetJob(ctx, job.ID); err == nil {
		job = fresh
	}

	log := w.logger.With().
		Int64("job_id", job.ID).
		Int64("order_id", job.OrderID).
		Str("request_id", uuid.NewString()).
		Logger()
	jobCtx := log.WithContext(ctx)

	if job.TaskType != TaskDispatch {
		w.failJob(ctx, job, fmt.Errorf("unknown task type: %s", job.TaskType))
		return
	}

	err := w.dispatcher.Dispatch(jobCtx, job.OrderID)
	var cerr *service.ConfigurationError
	switch {
	case err == nil:
		w.markCompleted(ctx, job, "")
	case errors.As(err, &cerr):
		log.Error().Err(err).Msg("dispatch blocked by configuration")
		w.failJob(ctx, job, err)
	case service.Permanent(err):
		log.Info().Err(err).Msg("dispatch finished without retry")
		w.markCompleted(ctx, job, err.Error())
	default:
		w.retryOrFail(ctx, job, err)
	}
}

func (w *DispatchWorker) markCompleted(ctx context.Context, job *models.Job, note string) {
	if err := w.jobs.UpdateJobStatus(ctx, job.ID, models.JobCompleted, note, nil); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark completed")
	}
}

func (w *DispatchWorker) retryOrFail(ctx context.Context, job *models.Job, cause error) {
	attempt := job.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failJob(ctx, job, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("job_id", job.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("dispatch will be retried")
	if err := w.jobs.UpdateJobStatus(ctx, job.ID, models.JobRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark retry")
	}
}

func (w *DispatchWorker) failJob(ctx context.Context, job *models.Job, cause error) {
	if err := w.jobs.UpdateJobStatus(ctx, job.ID, models.JobFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, job)
}

func (w *DispatchWorker) pushRedis(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *DispatchWorker) pushDeadLetter(ctx context.Context, job *models.Job) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("job_id", job.ID).Msg("deadletter push")
	}
}
