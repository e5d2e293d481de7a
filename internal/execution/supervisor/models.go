package supervisor

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lambda-feedback/agenthost/internal/execution/worker"
)

var (
	ErrSpawnFailure        = errors.New("failed to spawn worker")
	ErrSupervisorStopped   = errors.New("supervisor stopped")
	ErrUnsupportedMode     = errors.New("unsupported mode")
	ErrMissingWorkerSource = errors.New("missing worker source directory")
)

type Mode string

const (
	// Development runs the worker from source and enables hot reload.
	Development Mode = "development"

	// Production runs the bundled worker.
	Production Mode = "production"
)

// ParseMode parses a mode, accepting the common short forms.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return Development, true
	case "production", "prod", "":
		return Production, true
	}

	return "", false
}

type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Generation is one lifetime of the worker process, from spawn to
// termination. It is owned by the supervisor.
type Generation struct {
	// ID uniquely identifies the generation
	ID uuid.UUID

	// Seq is the 1-based sequence number of the generation
	Seq int

	// Worker is the worker process of this generation
	Worker worker.Worker

	// StartedAt is the time the worker was spawned
	StartedAt time.Time
}

// Status is a snapshot of the supervisor.
type Status struct {
	State      string    `json:"state"`
	Generation int       `json:"generation"`
	ID         string    `json:"id,omitempty"`
	Pid        int       `json:"pid,omitempty"`
	Alive      bool      `json:"alive"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}
