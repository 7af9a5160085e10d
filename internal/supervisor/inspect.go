package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
)

// ProcessInfo is a live record enriched with what the operating system reports.
type ProcessInfo struct {
	bundle.ProcessRecord `yaml:",inline"`
	// Executable is the process image name; empty when the process is gone.
	Executable string `yaml:"executable"`
	// Alive reports whether the operating system still knows the pid.
	Alive bool `yaml:"alive"`
}

// Inspect returns every live record together with its operating system view.
func (s *Supervisor) Inspect() ([]ProcessInfo, error) {
	records := s.Records()
	infos := make([]ProcessInfo, 0, len(records))

	for _, record := range records {
		info, err := Describe(record)
		if err != nil {
			return nil, err
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// Describe enriches a single record with what the operating system reports.
func Describe(record bundle.ProcessRecord) (ProcessInfo, error) {
	found, err := ps.FindProcess(record.PID)
	if err != nil {
		return ProcessInfo{}, fmt.Errorf("inspect pid %d: %w", record.PID, err)
	}

	info := ProcessInfo{ProcessRecord: record}
	if found != nil {
		info.Alive = true
		info.Executable = found.Executable()
	}

	return info, nil
}

var errNoExecutable = errors.New("executable name is empty")

// Orphans returns pids of processes running executable that this supervisor
// does not track, such as clients left behind by a previous daemon.
// Names are compared case-insensitively without extensions.
func (s *Supervisor) Orphans(executable string) ([]int, error) {
	want := executableName(executable)
	if want == "" {
		return nil, errNoExecutable
	}

	processes, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	self := os.Getpid()

	var orphans []int

	for _, process := range processes {
		pid := process.Pid()
		if pid == self || executableName(process.Executable()) != want {
			continue
		}

		if _, tracked := s.byPID[pid]; !tracked {
			orphans = append(orphans, pid)
		}
	}

	return orphans, nil
}

func executableName(path string) string {
	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}

	return strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
}

// Alive reports whether pid exists according to the operating system,
// whether or not it is supervised.
func Alive(pid int) (bool, error) {
	found, err := ps.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("find pid %d: %w", pid, err)
	}

	return found != nil, nil
}
