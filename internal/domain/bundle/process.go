package bundle

import "time"

// ProcessRecord describes one supervised client process.
// It exists from a successful spawn until the exit is observed or a manual close succeeds.
type ProcessRecord struct {
	PID       int       `json:"pid" yaml:"pid"`
	Instance  string    `json:"instance" yaml:"instance"`
	Version   string    `json:"version" yaml:"version"`
	User      string    `json:"user" yaml:"user"`
	WorkDir   string    `json:"work_dir" yaml:"work_dir"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
}
