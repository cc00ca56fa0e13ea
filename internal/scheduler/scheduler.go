package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/events"
	"showsync/internal/models"
)

// JobQueue is the slice of the job manager the schedulers need.
type JobQueue interface {
	Queue(ctx context.Context, job *models.SyncJob) error
}

// Fallback checkin windows when the title has no runtime on record.
const (
	defaultEpisodeRuntime = 45 * time.Minute
	defaultMovieRuntime   = 2 * time.Hour
)

// base is the serial executor every scheduler façade embeds. Public methods
// submit closures; one goroutine drains them in order, so reads, optimistic
// writes and enqueues of a single call never interleave with another call on
// the same scheduler.
type base struct {
	db     *database.DB
	jobs   JobQueue
	bus    *events.EventBus
	logger *zerolog.Logger
	tasks  chan task
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

func newBase(db *database.DB, jobs JobQueue, bus *events.EventBus, logger *zerolog.Logger) base {
	return base{
		db:     db,
		jobs:   jobs,
		bus:    bus,
		logger: logger,
		tasks:  make(chan task, 64),
	}
}

// Run drains submitted tasks until ctx is done.
func (b *base) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-b.tasks:
			if err := t.fn(ctx); err != nil {
				b.logger.Error().Err(err).Str("task", t.name).Msg("scheduler task failed")
			}
		}
	}
}

// submit queues a closure for the executor. Blocks only when the backlog is
// full.
func (b *base) submit(name string, fn func(ctx context.Context) error) {
	b.tasks <- task{name: name, fn: fn}
}

func (b *base) queue(ctx context.Context, job *models.SyncJob, err error) error {
	if err != nil {
		return err
	}
	return b.jobs.Queue(ctx, job)
}
