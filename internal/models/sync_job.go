package models

import "time"

// SyncJob is one durable unit of remote work queued in the job_queue table.
// Seq is the SQLite autoincrement position and fixes FIFO order; ID is the
// stable identifier handed to listeners and mirrored into Redis.
type SyncJob struct {
	Seq         int64      `json:"seq"`
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	EntityType  string     `json:"entity_type"`
	EntityID    int64      `json:"entity_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// EntityKey identifies the row a job targets, for the in-flight registry.
type EntityKey struct {
	Type string
	ID   int64
}

// Key returns the job's entity key.
func (j *SyncJob) Key() EntityKey {
	return EntityKey{Type: j.EntityType, ID: j.EntityID}
}

// Terminal reports whether the job reached a final state.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
