package models

// Job lifecycle statuses persisted in the job_queue table.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusRetry     = "retry"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Entity families a job can target.
const (
	EntityShow    = "show"
	EntityEpisode = "episode"
	EntityMovie   = "movie"
	EntityComment = "comment"
	EntityList    = "list"
	EntityUser    = "user"
)

// Image types cached on show and movie rows.
const (
	ImagePoster   = "poster"
	ImageBackdrop = "backdrop"
)

// Ratings accepted by the remote service. 0 clears the rating.
const (
	RatingMin = 0
	RatingMax = 10
)

const (
	DefaultMaxRetries   = 3
	DefaultPollInterval = 2 // seconds
)
