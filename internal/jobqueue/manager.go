package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/events"
	"showsync/internal/metrics"
	"showsync/internal/models"
	"showsync/internal/trakt"
)

// Handler executes one job kind. A nil return completes the job; transient
// errors reschedule it, anything else fails it terminally.
type Handler func(ctx context.Context, job *models.SyncJob) error

// DoneListener observes terminal job outcomes.
type DoneListener func(job *models.SyncJob, err error)

// Manager owns the durable job queue. Jobs are persisted to SQLite first,
// then mirrored into Redis (or an in-memory channel) as a fast path; the
// polling fallback guarantees delivery when both mirrors are lost.
type Manager struct {
	db            *database.DB
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncJob
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	concurrency   int
	logger        *zerolog.Logger
	bus           *events.EventBus

	mu        sync.Mutex
	handlers  map[string]Handler
	inFlight  map[models.EntityKey]struct{}
	listeners []DoneListener

	wg sync.WaitGroup
}

// NewManager builds a manager with sane defaults. redisClient and bus may be
// nil; the queue then runs on SQLite polling alone.
func NewManager(db *database.DB, redisClient *redis.Client, retry RetryPolicy, concurrency int, pollInterval time.Duration, bus *events.EventBus, logger *zerolog.Logger) *Manager {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = models.DefaultMaxRetries
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = models.DefaultPollInterval * time.Second
	}

	return &Manager{
		db:            db,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.SyncJob, 128),
		redisQueueKey: "showsync:queue",
		deadLetterKey: "showsync:deadletter",
		pollInterval:  pollInterval,
		batchSize:     20,
		concurrency:   concurrency,
		logger:        logger,
		bus:           bus,
		handlers:      make(map[string]Handler),
		inFlight:      make(map[models.EntityKey]struct{}),
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (m *Manager) Register(kind string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = handler
}

// OnDone registers a listener for terminal job outcomes.
func (m *Manager) OnDone(listener DoneListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Queue persists the job and schedules it. Identical queued jobs (same kind,
// entity and payload, not yet terminal) are suppressed so that repeated
// optimistic mutations collapse into one unit of remote work.
func (m *Manager) Queue(ctx context.Context, job *models.SyncJob) error {
	if job.Kind == "" {
		return errors.New("job kind is required")
	}

	existing, err := m.db.FindDuplicateJob(ctx, job)
	if err != nil {
		return err
	}
	if existing != nil {
		m.logger.Debug().
			Str("kind", job.Kind).
			Str("duplicate_of", existing.ID).
			Msg("duplicate job suppressed")
		*job = *existing
		return nil
	}

	if err := m.db.CreateSyncJob(ctx, job); err != nil {
		return err
	}
	metrics.IncQueued(job.Kind)
	m.updateQueueDepth(ctx)

	// Redis mirror first, in-memory channel as fallback. The row in SQLite
	// is the source of truth either way.
	if m.redis != nil {
		if err := m.pushRedis(ctx, *job); err != nil {
			m.logger.Warn().Err(err).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case m.queue <- *job:
	default:
		m.logger.Debug().Str("job_id", job.ID).Msg("memory queue full, job left to polling")
	}
	return nil
}

// Size returns the number of non-terminal jobs.
func (m *Manager) Size(ctx context.Context) (int, error) {
	return m.db.CountActiveJobs(ctx)
}

// Start recovers interrupted jobs and runs the dispatch loop until ctx is
// done. Jobs touching the same entity never run concurrently; with
// concurrency 1 execution is strictly FIFO.
func (m *Manager) Start(ctx context.Context) {
	recovered, err := m.db.RequeueRunningJobs(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to requeue interrupted jobs")
	} else if recovered > 0 {
		m.logger.Info().Int64("count", recovered).Msg("requeued interrupted jobs")
	}

	m.logger.Info().Int("concurrency", m.concurrency).Msg("job manager started")
	defer m.logger.Info().Msg("job manager stopped")

	sem := make(chan struct{}, m.concurrency)
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return
		default:
		}

		if job, ok := m.tryLocalQueue(); ok {
			m.dispatch(ctx, job, sem)
			continue
		}

		if job, ok := m.tryRedis(ctx); ok {
			m.dispatch(ctx, job, sem)
			continue
		}

		jobs, err := m.db.NextPendingJobs(ctx, m.batchSize)
		if err != nil {
			m.logger.Error().Err(err).Msg("failed to fetch pending jobs")
			m.sleep(ctx)
			continue
		}

		dispatched := 0
		for i := range jobs {
			if m.dispatch(ctx, jobs[i], sem) {
				dispatched++
			}
		}
		if dispatched == 0 {
			m.sleep(ctx)
		}
	}
}

func (m *Manager) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) tryLocalQueue() (models.SyncJob, bool) {
	select {
	case job := <-m.queue:
		return job, true
	default:
		return models.SyncJob{}, false
	}
}

func (m *Manager) tryRedis(ctx context.Context) (models.SyncJob, bool) {
	if m.redis == nil {
		return models.SyncJob{}, false
	}
	res, err := m.redis.BRPop(ctx, time.Second, m.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.SyncJob{}, false
		}
		m.logger.Warn().Err(err).Msg("redis BRPOP error")
		return models.SyncJob{}, false
	}
	if len(res) != 2 {
		return models.SyncJob{}, false
	}
	var job models.SyncJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		m.logger.Warn().Err(err).Msg("failed to decode redis job")
		return models.SyncJob{}, false
	}
	return job, true
}

// dispatch claims the job's entity and runs it on the worker pool. Returns
// false when another job for the same entity is already in flight; the job
// stays pending in SQLite and is picked up again by polling.
func (m *Manager) dispatch(ctx context.Context, job models.SyncJob, sem chan struct{}) bool {
	if !m.checkOut(job.Key()) {
		return false
	}

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		m.checkIn(job.Key())
		return false
	}

	m.wg.Add(1)
	go func() {
		defer func() {
			m.checkIn(job.Key())
			<-sem
			m.wg.Done()
		}()
		m.process(ctx, &job)
	}()
	return true
}

func (m *Manager) checkOut(key models.EntityKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[key]; busy {
		return false
	}
	m.inFlight[key] = struct{}{}
	return true
}

func (m *Manager) checkIn(key models.EntityKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, key)
}

func (m *Manager) process(ctx context.Context, job *models.SyncJob) {
	// Re-read the row: the same job can surface from both the fast path and
	// the polling fallback, and delivery is at-least-once.
	current, err := m.db.GetSyncJob(ctx, job.ID)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to load job")
		return
	}
	if current == nil || current.Terminal() {
		return
	}
	job = current

	// The fast paths (channel, Redis) deliver jobs in enqueue order, not in
	// entity order: an earlier job for the same entity may be parked in retry
	// backoff. Run only the head of the entity's line; the rest wait for the
	// polling fallback.
	headSeq, err := m.db.OldestActiveJobSeq(ctx, job.EntityType, job.EntityID)
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to resolve entity head job")
		return
	}
	if headSeq != job.Seq {
		m.logger.Debug().
			Str("job_id", job.ID).
			Int64("head_seq", headSeq).
			Msg("job deferred behind an earlier job for the same entity")
		return
	}

	if err := m.db.MarkJobRunning(ctx, job.ID); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job running")
		return
	}

	m.mu.Lock()
	handler := m.handlers[job.Kind]
	m.mu.Unlock()
	if handler == nil {
		m.failJob(ctx, job, errors.New("no handler registered for kind "+job.Kind))
		return
	}

	if err := handler(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown mid-job. The row stays running and is requeued on
			// the next start.
			return
		}
		if trakt.IsTransient(err) {
			m.retryOrFail(ctx, job, err)
		} else {
			m.failJob(ctx, job, err)
		}
		return
	}

	if err := m.db.MarkJobCompleted(ctx, job.ID); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job completed")
	}
	metrics.IncCompleted(job.Kind, "success")
	m.updateQueueDepth(ctx)
	m.notify(job, nil)
	_ = m.bus.PublishJSON(events.EventJobCompleted, events.JobEventPayload{
		JobID:      job.ID,
		Kind:       job.Kind,
		EntityType: job.EntityType,
		EntityID:   job.EntityID,
		Success:    true,
	})
}

func (m *Manager) retryOrFail(ctx context.Context, job *models.SyncJob, cause error) {
	attempt := job.Attempts + 1
	if attempt >= m.retryPolicy.MaxRetries {
		m.failJob(ctx, job, cause)
		return
	}

	nextTime := time.Now().Add(m.retryPolicy.NextDelay(attempt))
	if err := m.db.MarkJobRetry(ctx, job.ID, cause.Error(), nextTime); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job retry")
	}
	metrics.IncRetry()
	m.logger.Warn().
		Str("job_id", job.ID).
		Str("kind", job.Kind).
		Int("attempt", attempt).
		Time("next_retry", nextTime).
		Err(cause).
		Msg("job rescheduled")
}

// failJob records a terminal failure. Optimistic local state is deliberately
// left as the user wrote it; the next full resync reconciles it.
func (m *Manager) failJob(ctx context.Context, job *models.SyncJob, cause error) {
	if err := m.db.MarkJobFailed(ctx, job.ID, cause.Error()); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark job failed")
	}
	m.pushDeadLetter(ctx, job)
	metrics.IncCompleted(job.Kind, "failed")
	m.updateQueueDepth(ctx)
	m.notify(job, cause)

	m.logger.Error().
		Str("job_id", job.ID).
		Str("kind", job.Kind).
		Str("entity_type", job.EntityType).
		Int64("entity_id", job.EntityID).
		Err(cause).
		Msg("job failed")

	_ = m.bus.PublishJSON(events.EventJobFailed, events.JobEventPayload{
		JobID:      job.ID,
		Kind:       job.Kind,
		EntityType: job.EntityType,
		EntityID:   job.EntityID,
		Success:    false,
		Error:      cause.Error(),
	})
}

func (m *Manager) notify(job *models.SyncJob, cause error) {
	m.mu.Lock()
	listeners := append([]DoneListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, listener := range listeners {
		listener(job, cause)
	}
}

func (m *Manager) updateQueueDepth(ctx context.Context) {
	depth, err := m.db.CountActiveJobs(ctx)
	if err != nil {
		return
	}
	metrics.SetQueueDepth(depth)
}

func (m *Manager) pushRedis(ctx context.Context, job models.SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return m.redis.LPush(ctx, m.redisQueueKey, data).Err()
}

func (m *Manager) pushDeadLetter(ctx context.Context, job *models.SyncJob) {
	if m.redis == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := m.redis.LPush(ctx, m.deadLetterKey, data).Err(); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("deadletter push failed")
	}
}
