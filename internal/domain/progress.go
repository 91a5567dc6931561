package domain

import "time"

// StartingProgress is the bottom of the band reserved for the worker;
// anything below it belongs to the caller's own upload phase.
const StartingProgress = 30.0

// ProgressSnapshot is the last-written observer-facing progress record for
// a post.
type ProgressSnapshot struct {
	Percentage   float64   `json:"percentage"`
	Message      string    `json:"message"`
	Status       JobStatus `json:"status"`
	CurrentMedia int       `json:"currentMedia"`
	TotalMedia   int       `json:"totalMedia"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
