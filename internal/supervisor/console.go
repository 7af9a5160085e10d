package supervisor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

const (
	// ConsoleLogDir is the directory inside the working directory that holds console logs.
	ConsoleLogDir = "logs"
	// ConsoleLatestLink always points at the current console log.
	ConsoleLatestLink = "latest.log"

	consoleLogPattern = "console-%Y-%m-%d-%H-%M-%S.log"
	consoleDirPerm    = 0o755
)

// RotatingConsoleLogs writes console lines of each process into
// <work dir>/logs, rotating every rotation and deleting files older than maxAge.
func RotatingConsoleLogs(maxAge, rotation time.Duration) SinkFactory {
	return func(spec *Spec) (io.WriteCloser, error) {
		if spec.Dir == "" {
			return nil, nil //nolint:nilnil // No working directory means no console log.
		}

		dir := filepath.Join(spec.Dir, ConsoleLogDir)
		if err := os.MkdirAll(dir, consoleDirPerm); err != nil {
			return nil, fmt.Errorf("create console log directory: %w", err)
		}

		sink, err := rotatelogs.New(
			filepath.Join(dir, consoleLogPattern),
			rotatelogs.WithLinkName(filepath.Join(dir, ConsoleLatestLink)),
			rotatelogs.WithMaxAge(maxAge),
			rotatelogs.WithRotationTime(rotation),
		)
		if err != nil {
			return nil, fmt.Errorf("open console log: %w", err)
		}

		return sink, nil
	}
}
