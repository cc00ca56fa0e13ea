package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"showsync/internal/database"
	"showsync/internal/events"
	"showsync/internal/jobqueue"
	"showsync/internal/models"
)

// The remote service rejects comments shorter than five words.
const minCommentWords = 5

// CommentScheduler is the façade for comment mutations. Comment creation is
// not idempotent remotely, so identical unsynced comments are suppressed
// before anything is persisted.
type CommentScheduler struct {
	base
}

func NewCommentScheduler(db *database.DB, jobs JobQueue, bus *events.EventBus, logger *zerolog.Logger) *CommentScheduler {
	return &CommentScheduler{base: newBase(db, jobs, bus, logger)}
}

// Add creates a comment on a show, episode or movie.
func (s *CommentScheduler) Add(itemType string, itemID int64, text string, spoiler bool) {
	s.submit("add comment", func(ctx context.Context) error {
		if len(strings.Fields(text)) < minCommentWords {
			return fmt.Errorf("comment must be at least %d words", minCommentWords)
		}

		pending, err := s.db.HasPendingComment(ctx, itemType, itemID, text)
		if err != nil {
			return err
		}
		if pending {
			s.logger.Debug().Str("item_type", itemType).Int64("item_id", itemID).
				Msg("duplicate comment suppressed")
			return nil
		}

		comment := &models.Comment{ItemType: itemType, ItemID: itemID, Text: text, Spoiler: spoiler}
		if err := s.db.CreateComment(ctx, comment); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindCommentAdd, models.EntityComment, comment.ID, nil)
		return s.queue(ctx, job, err)
	})
}

// Update replaces the comment text.
func (s *CommentScheduler) Update(commentID int64, text string, spoiler bool) {
	s.submit("update comment", func(ctx context.Context) error {
		if len(strings.Fields(text)) < minCommentWords {
			return fmt.Errorf("comment must be at least %d words", minCommentWords)
		}
		if err := s.db.UpdateCommentText(ctx, commentID, text, spoiler); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindCommentUpdate, models.EntityComment, commentID, nil)
		return s.queue(ctx, job, err)
	})
}

// Delete hides the comment locally and removes it remotely.
func (s *CommentScheduler) Delete(commentID int64) {
	s.submit("delete comment", func(ctx context.Context) error {
		if err := s.db.MarkCommentDeleted(ctx, commentID); err != nil {
			return err
		}
		job, err := jobqueue.NewJob(jobqueue.KindCommentDelete, models.EntityComment, commentID, nil)
		return s.queue(ctx, job, err)
	})
}
