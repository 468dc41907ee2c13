package domain

import (
	"fmt"
	"time"
)

// JobType names a unit of resolution work.
type JobType string

const (
	JobSetWinner     JobType = "set_winner"
	JobWash          JobType = "wash"
	JobRecordHistory JobType = "record_history"
)

// JobState is the queue-side state of a job.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobDelayed   JobState = "delayed"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobKey is the deterministic deduplication key for a wager and job type.
func JobKey(wagerID string, t JobType) string {
	return fmt.Sprintf("wager:%s:%s", wagerID, t)
}

// ResolutionJob is a queued request to apply a terminal outcome or record a
// history entry for a wager.
type ResolutionJob struct {
	Key        string            `json:"key"`
	Type       JobType           `json:"type"`
	WagerID    string            `json:"wager_id"`
	Payload    map[string]string `json:"payload,omitempty"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	FailedAt   *time.Time        `json:"failed_at,omitempty"`
}

// Payload keys shared by producers and handlers.
const (
	PayloadChoice = "choice"
	PayloadReason = "reason"
	PayloadEvent  = "event"
	PayloadDetail = "detail"
)

// JobCounts summarises queue depth for operators.
type JobCounts struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
