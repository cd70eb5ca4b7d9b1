package process

import "time"

// Status is a point-in-time view of a supervised process.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"exit_error,omitempty"`
}
