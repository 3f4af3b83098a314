package domain

import "time"

// ProcessJob is the queue message handed to the background worker.
type ProcessJob struct {
	ModelID      string    `json:"model_id"`
	Source       string    `json:"source"`
	SkipGeometry bool      `json:"skip_geometry"`
	CallbackURL  string    `json:"callback_url,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
