package launch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/oshokin/bundle-launcher/internal/logger"
)

// runtimeProbeTimeout bounds the "-version" call.
const runtimeProbeTimeout = 10 * time.Second

var (
	// ErrRuntimeTooOld is returned when the runtime is older than the descriptor requires.
	ErrRuntimeTooOld = errors.New("runtime is older than required")

	errUnknownRuntimeVersion = errors.New("runtime version not recognised")

	// versionPattern matches `version "21.0.2"` and `version "1.8.0_372"`.
	versionPattern = regexp.MustCompile(`version "([0-9][0-9._+-]*[0-9a-zA-Z]*)"`)
)

// RuntimeMajor extracts the major runtime version from "-version" output.
// Legacy "1.x" versions report x.
func RuntimeMajor(output string) (int, error) {
	match := versionPattern.FindStringSubmatch(output)
	if match == nil {
		return 0, errUnknownRuntimeVersion
	}

	parsed, err := goversion.NewVersion(normalize(match[1]))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errUnknownRuntimeVersion, err)
	}

	segments := parsed.Segments()
	if segments[0] == 1 && len(segments) > 1 {
		return segments[1], nil
	}

	return segments[0], nil
}

// normalize turns "1.8.0_372" into "1.8.0+372" so it parses as a version.
func normalize(raw string) string {
	return strings.ReplaceAll(raw, "_", "+")
}

// CheckRuntime runs "<runtimePath> -version" and fails with ErrRuntimeTooOld
// when its major version is below minMajor. A zero minMajor skips the check.
func CheckRuntime(ctx context.Context, runtimePath string, minMajor int) error {
	if minMajor <= 0 {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, runtimeProbeTimeout)
	defer cancel()

	// The runtime prints its version to stderr.
	output, err := exec.CommandContext(probeCtx, runtimePath, "-version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("probe runtime %s: %w", runtimePath, err)
	}

	major, err := RuntimeMajor(string(output))
	if err != nil {
		return fmt.Errorf("runtime %s: %w", runtimePath, err)
	}

	constraint, err := goversion.NewConstraint(">= " + strconv.Itoa(minMajor))
	if err != nil {
		return err
	}

	if !constraint.Check(goversion.Must(goversion.NewVersion(strconv.Itoa(major)))) {
		return fmt.Errorf("runtime %s is %d, need %d: %w", runtimePath, major, minMajor, ErrRuntimeTooOld)
	}

	logger.DebugKV(ctx, "Runtime accepted", "runtime", runtimePath, "major", major, "required", minMajor)

	return nil
}
