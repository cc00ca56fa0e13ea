package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/events"
	"showsync/internal/jobqueue"
	"showsync/internal/models"
)

// ListScheduler is the façade for custom list membership mutations.
type ListScheduler struct {
	base
}

func NewListScheduler(db *database.DB, jobs JobQueue, bus *events.EventBus, logger *zerolog.Logger) *ListScheduler {
	return &ListScheduler{base: newBase(db, jobs, bus, logger)}
}

// AddItem records list membership and queues the remote add.
func (s *ListScheduler) AddItem(listTraktID int64, itemType string, itemID int64) {
	s.submit("add list item", func(ctx context.Context) error {
		item := &models.ListItem{ListTraktID: listTraktID, ItemType: itemType, ItemID: itemID}
		if err := s.db.AddListItem(ctx, item); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindListAdd, itemType, itemID,
			jobqueue.ListPayload{ListTraktID: listTraktID})
		return s.queue(ctx, job, err)
	})
}

// RemoveItem drops list membership and queues the remote remove.
func (s *ListScheduler) RemoveItem(listTraktID int64, itemType string, itemID int64) {
	s.submit("remove list item", func(ctx context.Context) error {
		if err := s.db.RemoveListItem(ctx, listTraktID, itemType, itemID); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindListRemove, itemType, itemID,
			jobqueue.ListPayload{ListTraktID: listTraktID})
		return s.queue(ctx, job, err)
	})
}
