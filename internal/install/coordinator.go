package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	"github.com/oshokin/bundle-launcher/internal/layout"
	"github.com/oshokin/bundle-launcher/internal/logger"
	"github.com/oshokin/bundle-launcher/internal/metrics"
	"github.com/oshokin/bundle-launcher/internal/transport"
)

const (
	// DefaultConcurrency bounds simultaneous transfers within one category.
	DefaultConcurrency = 16
	// DefaultAssetBatchSize bounds simultaneous asset transfers.
	DefaultAssetBatchSize = 50
	// DefaultAttempts is the per-file attempt ceiling.
	DefaultAttempts = 3
	// DefaultRetryDelay is the pause between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
)

var (
	errNoInstanceDir       = errors.New("content packs need an instance directory")
	errPathOutsideInstance = errors.New("path escapes the instance directory")
)

// Downloader streams a URL into a writer.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer, progress transport.ProgressFunc) (int64, error)
}

// Stager extracts native archives into a fresh directory.
type Stager interface {
	Stage(ctx context.Context, descriptor *bundle.Descriptor, archives []string) (string, error)
}

// Result describes a finished install.
type Result struct {
	// NativesDir is the staging directory created for this install.
	NativesDir string
	// Planned is the number of files that needed a download, per category.
	Planned map[Category]int
	// Downloaded is the number of files transferred.
	Downloaded int
	// Bytes is the number of bytes transferred.
	Bytes int64
}

// Coordinator plans and executes installs.
type Coordinator struct {
	downloader     Downloader
	stager         Stager
	layout         *layout.Layout
	concurrency    int
	assetBatchSize int
	attempts       int
	retryDelay     time.Duration
	collector      metrics.Collector
	publisher      events.Publisher
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency bounds simultaneous transfers within one category.
func WithConcurrency(concurrency int) Option {
	return func(c *Coordinator) {
		if concurrency > 0 {
			c.concurrency = concurrency
		}
	}
}

// WithAssetBatchSize sets how many asset transfers run at once.
func WithAssetBatchSize(size int) Option {
	return func(c *Coordinator) {
		if size > 0 {
			c.assetBatchSize = size
		}
	}
}

// WithRetry sets the attempt ceiling and the pause between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.attempts = attempts
		}

		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithMetrics reports transfers to collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(c *Coordinator) {
		c.collector = metrics.OrNoop(collector)
	}
}

// WithPublisher reports progress to publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = events.OrNop(publisher)
	}
}

// New creates a coordinator writing below storeLayout.
func New(downloader Downloader, stager Stager, storeLayout *layout.Layout, opts ...Option) *Coordinator {
	c := &Coordinator{
		downloader:     downloader,
		stager:         stager,
		layout:         storeLayout,
		concurrency:    DefaultConcurrency,
		assetBatchSize: DefaultAssetBatchSize,
		attempts:       DefaultAttempts,
		retryDelay:     DefaultRetryDelay,
		collector:      metrics.NewNoop(),
		publisher:      events.Nop{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Plan runs only the verification phase.
func (c *Coordinator) Plan(ctx context.Context, descriptor *bundle.Descriptor, instanceDir string) (*Plan, error) {
	return c.plan(ctx, descriptor, instanceDir)
}

// Install makes every file of descriptor valid on disk and stages natives.
// Content packs are placed inside instanceDir. A failed transfer fails the
// whole install; files written so far stay and are verified next time.
func (c *Coordinator) Install(ctx context.Context, descriptor *bundle.Descriptor, instanceDir string) (*Result, error) {
	ctx = logger.WithKV(ctx, "descriptor", descriptor.ID)

	plan, err := c.plan(ctx, descriptor, instanceDir)
	if err != nil {
		return nil, err
	}

	result := &Result{Planned: make(map[Category]int, len(plan.Tasks))}
	for category, tasks := range plan.Tasks {
		result.Planned[category] = len(tasks)
	}

	total := plan.Total()

	c.publisher.Publish(events.Event{
		Kind:     events.KindInstallStarted,
		Time:     time.Now(),
		Resource: descriptor.ID,
		Total:    total,
	})

	if total > 0 {
		logger.InfoKV(ctx, "Downloading files", "files", total)

		if err = c.transfer(ctx, plan, result); err != nil {
			return nil, err
		}
	} else {
		logger.DebugKV(ctx, "Every file is valid, nothing to download")
	}

	result.NativesDir, err = c.stager.Stage(ctx, descriptor, plan.Natives)
	if err != nil {
		return nil, err
	}

	c.publisher.Publish(events.Event{
		Kind:     events.KindInstallCompleted,
		Time:     time.Now(),
		Resource: descriptor.ID,
		Done:     result.Downloaded,
		Total:    total,
	})

	logger.InfoKV(ctx, "Install completed",
		"downloaded", result.Downloaded,
		"bytes", result.Bytes,
		"natives_dir", result.NativesDir)

	return result, nil
}

// transfer runs every category concurrently.
func (c *Coordinator) transfer(ctx context.Context, plan *Plan, result *Result) error {
	var (
		downloaded atomic.Int64
		bytes      atomic.Int64
	)

	group, groupCtx := errgroup.WithContext(ctx)

	for category, tasks := range plan.Tasks {
		group.Go(func() error {
			progress := &categoryProgress{category: category, total: len(tasks), publisher: c.publisher}

			onDone := func(written int64) {
				downloaded.Add(1)
				bytes.Add(written)
				progress.done()
			}

			if category == CategoryAssets {
				return c.runBatches(groupCtx, tasks, onDone)
			}

			return c.runLimited(groupCtx, tasks, c.concurrency, onDone)
		})
	}

	err := group.Wait()

	result.Downloaded = int(downloaded.Load())
	result.Bytes = bytes.Load()

	return err
}

// runBatches transfers tasks in consecutive batches of assetBatchSize.
func (c *Coordinator) runBatches(ctx context.Context, tasks []Task, onDone func(int64)) error {
	for start := 0; start < len(tasks); start += c.assetBatchSize {
		end := min(start+c.assetBatchSize, len(tasks))

		if err := c.runLimited(ctx, tasks[start:end], c.assetBatchSize, onDone); err != nil {
			return err
		}
	}

	return nil
}

// runLimited transfers tasks with at most limit in flight.
func (c *Coordinator) runLimited(ctx context.Context, tasks []Task, limit int, onDone func(int64)) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for _, task := range tasks {
		group.Go(func() error {
			written, err := c.fetchWithRetry(groupCtx, task)
			if err != nil {
				return err
			}

			onDone(written)

			return nil
		})
	}

	return group.Wait()
}

// fetchWithRetry makes up to attempts tries, pausing retryDelay between them.
func (c *Coordinator) fetchWithRetry(ctx context.Context, task Task) (int64, error) {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		written, err := c.fetch(ctx, task)
		if err == nil {
			c.collector.DownloadCompleted(string(task.Category), written)
			return written, nil
		}

		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		lastErr = err

		if attempt == c.attempts {
			break
		}

		c.collector.DownloadRetried(string(task.Category))
		logger.DebugKV(ctx, "Retrying download", "url", task.URL, "attempt", attempt, "error", err)

		if err = sleep(ctx, c.retryDelay); err != nil {
			return 0, err
		}
	}

	c.collector.DownloadFailed(string(task.Category))
	logger.ErrorKV(ctx, "Download failed", "url", task.URL, "attempts", c.attempts, "error", lastErr)

	// Verification mismatches stay local; only the exhausted transfer is reported.
	return 0, fmt.Errorf("%s after %d attempts: %w: %v", task.URL, c.attempts, bundle.ErrDownloadFailed, lastErr) //nolint:errorlint // See above.
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// categoryProgress publishes per-category progress.
type categoryProgress struct {
	category  Category
	total     int
	finished  atomic.Int64
	publisher events.Publisher
}

func (p *categoryProgress) done() {
	p.publisher.Publish(events.Event{
		Kind:     events.KindDownloadProgress,
		Time:     time.Now(),
		Category: string(p.category),
		Done:     int(p.finished.Add(1)),
		Total:    p.total,
	})
}
