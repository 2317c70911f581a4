// Package models defines the job and event types shared by the gateway
// layers.
package models

import "time"

// JobState represents the current state of a simulation job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
	StateTimeout   JobState = "timeout"
)

// Terminal reports whether the state allows no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimeout:
		return true
	}
	return false
}

// JSONB represents a JSON/JSONB field for PostgreSQL.
type JSONB map[string]any

// Job represents one firmware simulation run managed by the gateway.
type Job struct {
	JobID          string     `json:"job_id" db:"job_id"`
	UserID         string     `json:"user_id" db:"user_id"`
	SHA256         string     `json:"sha256" db:"sha256"`
	State          JobState   `json:"state" db:"state"`
	WorkerID       *string    `json:"worker_id,omitempty" db:"worker_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	TimeoutSeconds int        `json:"timeout_seconds" db:"timeout_seconds"`
	ErrorText      *string    `json:"error_text,omitempty" db:"error_text"`
	DebugMode      bool       `json:"debug_mode" db:"debug_mode"`
	GDBPort        *int       `json:"gdb_port,omitempty" db:"gdb_port"`
	GDBHost        *string    `json:"gdb_host,omitempty" db:"gdb_host"`
	GDBConnected   bool       `json:"gdb_connected" db:"gdb_connected"`
	GDBConnectedAt *time.Time `json:"gdb_connected_at,omitempty" db:"gdb_connected_at"`
	Metadata       *JSONB     `json:"metadata,omitempty" db:"metadata"`
}

// CreateJobRequest is the request body for creating a new job.
type CreateJobRequest struct {
	BinaryB64      string `json:"binary_b64"`
	Debug          bool   `json:"debug"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// CreateJobResponse is returned after a job is accepted.
type CreateJobResponse struct {
	JobID     string `json:"job_id"`
	SHA256    string `json:"sha256"`
	Debug     bool   `json:"debug"`
	StatusURL string `json:"status_url"`
	EventsURL string `json:"events_url"`
}

// JobStatusResponse is the job status view returned to clients.
type JobStatusResponse struct {
	JobID      string     `json:"job_id"`
	State      JobState   `json:"state"`
	WorkerID   *string    `json:"worker_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DebugMode  bool       `json:"debug_mode"`
	ErrorText  *string    `json:"error_text,omitempty"`
}

// GDBInfoResponse describes the remote debug endpoint of a debug job.
type GDBInfoResponse struct {
	JobID            string  `json:"job_id"`
	DebugEnabled     bool    `json:"debug_enabled"`
	GDBHost          *string `json:"gdb_host,omitempty"`
	GDBPort          *int    `json:"gdb_port,omitempty"`
	ConnectionString string  `json:"connection_string,omitempty"`
	Status           string  `json:"status"`
	Connected        bool    `json:"connected"`
}

// CancelJobResponse is returned after a cancellation request.
type CancelJobResponse struct {
	JobID     string `json:"job_id"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// EventType classifies an SSE event.
type EventType string

const (
	EventTypeStatus    EventType = "status"
	EventTypeLog       EventType = "log"
	EventTypeTelemetry EventType = "telemetry"
	EventTypeGDBInfo   EventType = "gdb_info"
	EventTypeError     EventType = "error"
)

// Event is one SSE event on a job's event stream.
type Event struct {
	Type      EventType      `json:"type"`
	JobID     string         `json:"job_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
