package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/layout"
)

const helperEnv = "BUNDLE_SUPERVISOR_HELPER"

// TestMain turns the test binary into a fake client when helperEnv is set.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "echo":
		fmt.Fprintln(os.Stdout, "hello from stdout")
		fmt.Fprintln(os.Stderr, "hello from stderr")
		os.Exit(3)
	case "sleep":
		fmt.Fprintln(os.Stdout, "ready")
		time.Sleep(time.Minute)
		os.Exit(0)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		fmt.Fprintln(os.Stdout, "ready")
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func helperSpec(mode, instance, dir string) *Spec {
	return &Spec{
		Instance: instance,
		Version:  "1.21.1",
		User:     "Steve",
		Path:     os.Args[0],
		Args:     []string{"-test.run=^$"},
		Dir:      dir,
		Env:      []string{helperEnv + "=" + mode},
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	return ctx
}

// recorder collects every published event and forwards console lines.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	lines  chan string
}

func newRecorder() *recorder {
	return &recorder{lines: make(chan string, 64)}
}

func (r *recorder) Publish(event events.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()

	if event.Kind == events.KindConsoleLine {
		select {
		case r.lines <- event.Line:
		default:
		}
	}
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.Event(nil), r.events...)
}

func waitLine(ctx context.Context, t *testing.T, r *recorder, want string) {
	t.Helper()

	for {
		select {
		case line := <-r.lines:
			if line == want {
				return
			}
		case <-ctx.Done():
			t.Fatalf("line %q never arrived", want)
		}
	}
}

// TestSpawn_StreamsConsoleAndExit follows a process from launch to exit.
func TestSpawn_StreamsConsoleAndExit(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)

	var (
		sup        *Supervisor
		pidsAtExit []int
		exitSeen   bool
	)

	rec := newRecorder()
	sup = New(layout.New(t.TempDir()), WithPublisher(events.Multi{rec, events.Func(func(event events.Event) {
		if event.Kind == events.KindProcessExited {
			pidsAtExit = sup.GetPids(event.Instance)
			exitSeen = true
		}
	})}))

	handle, err := sup.Spawn(ctx, helperSpec("echo", "survival", ""))
	require.NoError(t, err)
	require.Positive(t, handle.PID())
	require.Equal(t, "survival", handle.Record().Instance)

	exit, err := handle.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, exit.Code)
	require.False(t, exit.Closed)
	require.Equal(t, StateExited, handle.State())

	require.Empty(t, sup.GetPids("survival"))
	_, ok := sup.GetPid("survival")
	require.False(t, ok)

	require.True(t, exitSeen)
	require.Empty(t, pidsAtExit)

	published := rec.all()
	require.NotEmpty(t, published)
	require.Equal(t, events.KindProcessLaunched, published[0].Kind)
	require.Equal(t, events.KindProcessExited, published[len(published)-1].Kind)
	require.Equal(t, 3, published[len(published)-1].ExitCode)

	streams := make(map[events.Stream]string)

	for _, event := range published {
		if event.Kind == events.KindConsoleLine {
			require.Equal(t, handle.PID(), event.PID)
			streams[event.Stream] = event.Line
		}
	}

	require.Equal(t, "hello from stdout", streams[events.StreamStdout])
	require.Equal(t, "hello from stderr", streams[events.StreamStderr])
}

// TestClose_RemovesRecord closes a running process and checks the registry.
func TestClose_RemovesRecord(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	sup := New(layout.New(t.TempDir()))

	handle, err := sup.Spawn(ctx, helperSpec("sleep", "survival", ""))
	require.NoError(t, err)

	require.Equal(t, []int{handle.PID()}, sup.GetPids("survival"))

	pid, ok := sup.GetPid("survival")
	require.True(t, ok)
	require.Equal(t, handle.PID(), pid)

	records := sup.Records()
	require.Len(t, records, 1)
	require.Equal(t, "Steve", records[0].User)

	require.NoError(t, sup.Close(ctx, pid))

	_, ok = sup.GetPid("survival")
	require.False(t, ok)
	require.Empty(t, sup.Records())
	require.Equal(t, StateClosed, handle.State())

	exit, err := handle.Wait(ctx)
	require.NoError(t, err)
	require.True(t, exit.Closed)
	require.NotZero(t, exit.Code)

	require.ErrorIs(t, sup.Close(ctx, pid), bundle.ErrProcessNotFound)
}

// TestClose_UnknownPid fails without side effects.
func TestClose_UnknownPid(t *testing.T) {
	t.Parallel()

	sup := New(layout.New(t.TempDir()))
	require.ErrorIs(t, sup.Close(context.Background(), 999999), bundle.ErrProcessNotFound)
}

// TestClose_KillsAfterGrace handles clients that ignore the termination request.
func TestClose_KillsAfterGrace(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	rec := newRecorder()
	sup := New(layout.New(t.TempDir()), WithPublisher(rec), WithCloseGrace(200*time.Millisecond))

	handle, err := sup.Spawn(ctx, helperSpec("stubborn", "survival", ""))
	require.NoError(t, err)

	waitLine(ctx, t, rec, "ready")

	require.NoError(t, sup.Close(ctx, handle.PID()))
	require.Empty(t, sup.GetPids("survival"))
	require.Equal(t, StateClosed, handle.State())
}

// TestSpawn_FailureRegistersNothing checks that failed spawns leave no record.
func TestSpawn_FailureRegistersNothing(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	sup := New(layout.New(t.TempDir()))

	spec := helperSpec("echo", "survival", "")
	spec.Path = filepath.Join(t.TempDir(), "missing-runtime")

	_, err := sup.Spawn(ctx, spec)
	require.ErrorIs(t, err, bundle.ErrProcessSpawnFailed)

	spec.Path = ""
	_, err = sup.Spawn(ctx, spec)
	require.ErrorIs(t, err, bundle.ErrProcessSpawnFailed)

	require.Empty(t, sup.Records())
	require.Empty(t, sup.GetPids("survival"))
}

// TestSpawn_SeveralProcessesPerName tracks every process of one instance.
func TestSpawn_SeveralProcessesPerName(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	sup := New(layout.New(t.TempDir()))

	first, err := sup.Spawn(ctx, helperSpec("sleep", "survival", ""))
	require.NoError(t, err)

	second, err := sup.Spawn(ctx, helperSpec("sleep", "survival", ""))
	require.NoError(t, err)

	pids := sup.GetPids("survival")
	require.Len(t, pids, 2)
	require.ElementsMatch(t, []int{first.PID(), second.PID()}, pids)
	require.Less(t, pids[0], pids[1])

	pid, ok := sup.GetPid("survival")
	require.True(t, ok)
	require.Contains(t, pids, pid)

	require.NoError(t, sup.CloseAll(ctx))
	require.Empty(t, sup.GetPids("survival"))
}

// TestDelete_RefusesWhileRunning keeps the instance directory while a process is live.
func TestDelete_RefusesWhileRunning(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	storeLayout := layout.New(t.TempDir())

	instanceDir, err := storeLayout.Instance("survival")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(instanceDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(instanceDir, "options.txt"), []byte("fov:90"), 0o600))

	shared := filepath.Join(storeLayout.LibrariesDir(), "lib.jar")
	require.NoError(t, os.MkdirAll(filepath.Dir(shared), 0o755))
	require.NoError(t, os.WriteFile(shared, []byte("jar"), 0o600))

	sup := New(storeLayout)

	handle, err := sup.Spawn(ctx, helperSpec("sleep", "survival", instanceDir))
	require.NoError(t, err)

	require.ErrorIs(t, sup.Delete(ctx, "survival"), bundle.ErrInstanceRunning)
	require.FileExists(t, filepath.Join(instanceDir, "options.txt"))

	require.NoError(t, sup.Close(ctx, handle.PID()))
	require.NoError(t, sup.Delete(ctx, "survival"))
	require.NoDirExists(t, instanceDir)
	require.FileExists(t, shared)

	require.Error(t, sup.Delete(ctx, "../escape"))
}

// TestConsoleLogs_AreWritten checks the rotating console log sink.
func TestConsoleLogs_AreWritten(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	workDir := t.TempDir()
	sup := New(layout.New(t.TempDir()), WithConsoleSinks(RotatingConsoleLogs(time.Hour, time.Hour)))

	handle, err := sup.Spawn(ctx, helperSpec("echo", "survival", workDir))
	require.NoError(t, err)

	_, err = handle.Wait(ctx)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(workDir, ConsoleLogDir, "console-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	contents, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.Contains(t, string(contents), "[stdout] hello from stdout")
	require.Contains(t, string(contents), "[stderr] hello from stderr")
}

// TestNatives_ReclaimedAfterExit removes the staging directory once the process ends.
func TestNatives_ReclaimedAfterExit(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	nativesDir := filepath.Join(t.TempDir(), "natives-1")
	require.NoError(t, os.MkdirAll(nativesDir, 0o755))

	sup := New(layout.New(t.TempDir()), WithReclaimer(os.RemoveAll))

	spec := helperSpec("echo", "survival", "")
	spec.NativesDir = nativesDir

	handle, err := sup.Spawn(ctx, spec)
	require.NoError(t, err)

	_, err = handle.Wait(ctx)
	require.NoError(t, err)
	require.NoDirExists(t, nativesDir)
}

// TestInspect_ReportsLiveProcesses enriches records with operating system data.
func TestInspect_ReportsLiveProcesses(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	sup := New(layout.New(t.TempDir()))

	handle, err := sup.Spawn(ctx, helperSpec("sleep", "survival", ""))
	require.NoError(t, err)

	infos, err := sup.Inspect()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.True(t, infos[0].Alive)
	require.NotEmpty(t, infos[0].Executable)
	require.Equal(t, handle.PID(), infos[0].PID)

	alive, err := Alive(handle.PID())
	require.NoError(t, err)
	require.True(t, alive)

	require.NoError(t, sup.Close(ctx, handle.PID()))

	alive, err = Alive(handle.PID())
	require.NoError(t, err)
	require.False(t, alive)
}

// TestDescribe_ReportsGoneProcesses leaves exited records without an executable.
func TestDescribe_ReportsGoneProcesses(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	sup := New(layout.New(t.TempDir()))

	handle, err := sup.Spawn(ctx, helperSpec("sleep", "survival", ""))
	require.NoError(t, err)

	info, err := Describe(handle.Record())
	require.NoError(t, err)
	require.True(t, info.Alive)
	require.NotEmpty(t, info.Executable)
	require.Equal(t, handle.Record(), info.ProcessRecord)

	require.NoError(t, sup.Close(ctx, handle.PID()))

	info, err = Describe(handle.Record())
	require.NoError(t, err)
	require.False(t, info.Alive)
	require.Empty(t, info.Executable)
}

// TestOrphans_SkipsTrackedProcesses never reports supervised pids or the caller.
func TestOrphans_SkipsTrackedProcesses(t *testing.T) {
	t.Parallel()

	ctx := testContext(t)
	sup := New(layout.New(t.TempDir()))

	_, err := sup.Orphans("")
	require.Error(t, err)

	handle, err := sup.Spawn(ctx, helperSpec("sleep", "survival", ""))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = sup.Close(context.Background(), handle.PID())
	})

	orphans, err := sup.Orphans(os.Args[0])
	require.NoError(t, err)
	require.NotContains(t, orphans, handle.PID())
	require.NotContains(t, orphans, os.Getpid())
}

// TestExecutableName normalizes paths and extensions.
func TestExecutableName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "java", executableName("/usr/lib/jvm/bin/java"))
	require.Equal(t, "javaw", executableName("JavaW.exe"))
	require.Empty(t, executableName(""))
}
