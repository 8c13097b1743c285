package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobRecordActivities  JobType = "record_activities"
	JobSendNotifications JobType = "send_notifications"
)

const (
	RetryKey     = "jobs:retry"
	DeadQueueKey = "jobs:dead"
)

type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	MaxTries  int             `json:"max_tries"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	ProcessAt time.Time       `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	retryBackoff time.Duration
	jobTimeout   time.Duration
	logger       *slog.Logger
	now          func() time.Time
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	Concurrency  int
	PollInterval time.Duration
	RetryBackoff time.Duration
	Queues       []string
	Logger       *slog.Logger

	// JobTimeout bounds a single handler run. Stop waits for it.
	JobTimeout time.Duration
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	backoff := config.RetryBackoff
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	jobTimeout := config.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}

	return &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		pollInterval: pollInterval,
		retryBackoff: backoff,
		jobTimeout:   jobTimeout,
		logger:       logger.With("component", "worker"),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches concurrency consumers plus one goroutine that moves due
// retries back onto their queues.
func (w *Worker) Start(concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	w.logger.Info("starting worker", "concurrency", concurrency, "queues", w.queues)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}

	w.wg.Add(1)
	go w.retryLoop()
}

func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(w.ctx, w.pollInterval); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				w.logger.Error("error processing job", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) retryLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.promoteDue(w.ctx, w.now()); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("failed to promote retries", "error", err)
			}
		}
	}
}

func (w *Worker) processNextJob(ctx context.Context, timeout time.Duration) error {
	result, err := w.client.BLPop(ctx, timeout, w.queues...).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queue := result[0]
	jobData := result[1]

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Queue == "" {
		job.Queue = queue
	}

	// once popped the job is only in memory, so shutdown must not
	// interrupt running or requeueing it
	ctx = context.WithoutCancel(ctx)

	if w.now().Before(job.ProcessAt) {
		return w.scheduleRetry(ctx, &job)
	}

	return w.executeJob(ctx, &job)
}

// executeJob runs the handler and records the outcome. ctx must not be
// tied to worker shutdown.
func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	logger := w.logger.With("job_id", job.ID, "job_type", job.Type)
	logger.Debug("processing job")

	runCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	err := handler(runCtx, job)
	if err != nil {
		job.Attempts++
		job.LastError = err.Error()
		if job.Attempts < job.MaxTries {
			logger.Warn("job failed, retrying", "attempt", job.Attempts, "max_tries", job.MaxTries, "error", err)
			job.ProcessAt = w.now().Add(w.backoff(job.Attempts))
			return w.scheduleRetry(ctx, job)
		}

		logger.Error("job failed permanently", "attempts", job.Attempts, "error", err)
		return w.moveToDeadQueue(ctx, job, err)
	}

	logger.Debug("job completed")
	return nil
}

// backoff doubles the base delay for every failed attempt.
func (w *Worker) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 10 {
		attempts = 10
	}
	return w.retryBackoff * time.Duration(1<<(attempts-1))
}

func (w *Worker) scheduleRetry(ctx context.Context, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return w.client.ZAdd(ctx, RetryKey, redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: jobData,
	}).Err()
}

// promoteDue moves every retry whose time has come back to its queue and
// reports how many were moved.
func (w *Worker) promoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := w.client.ZRangeByScore(ctx, RetryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read retries: %w", err)
	}

	moved := 0
	for _, member := range members {
		removed, err := w.client.ZRem(ctx, RetryKey, member).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to claim retry: %w", err)
		}
		// another worker claimed it
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			w.logger.Error("dropping unreadable retry", "error", err)
			continue
		}
		if err := w.client.RPush(ctx, job.Queue, member).Err(); err != nil {
			return moved, fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		moved++
	}

	return moved, nil
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    w.now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return w.client.RPush(ctx, DeadQueueKey, deadJobData).Err()
}

type JobQueue struct {
	client   *redis.Client
	maxTries int
}

func NewJobQueue(client *redis.Client, maxTries int) *JobQueue {
	if maxTries < 1 {
		maxTries = 1
	}
	return &JobQueue{client: client, maxTries: maxTries}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload interface{}) error {
	return q.EnqueueAt(ctx, queue, jobType, payload, time.Now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload interface{}, processAt time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return err
	}

	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Queue:     queue,
		Payload:   data,
		MaxTries:  q.maxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return q.client.RPush(ctx, queue, jobData).Err()
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}

// Sizes reports the length of each queue plus the retry and dead sets.
func (q *JobQueue) Sizes(ctx context.Context, queues []string) (map[string]int64, error) {
	sizes := make(map[string]int64, len(queues)+2)
	for _, name := range queues {
		n, err := q.GetQueueSize(ctx, name)
		if err != nil {
			return nil, err
		}
		sizes[name] = n
	}

	retries, err := q.client.ZCard(ctx, RetryKey).Result()
	if err != nil {
		return nil, err
	}
	sizes[RetryKey] = retries

	dead, err := q.client.LLen(ctx, DeadQueueKey).Result()
	if err != nil {
		return nil, err
	}
	sizes[DeadQueueKey] = dead

	return sizes, nil
}
