package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/oshokin/bundle-launcher/internal/version"
)

var (
	// ErrNotFound is returned for 404 and 410 responses.
	ErrNotFound = errors.New("resource not found")
	// ErrBadStatus is returned for every other non-200 response.
	ErrBadStatus = errors.New("unexpected http status")
	// ErrDecode is returned when a JSON body cannot be decoded.
	ErrDecode = errors.New("decode response")
	// ErrStalled is returned when a request makes no progress within the timeout.
	ErrStalled = errors.New("transfer stalled")
)

// DefaultTimeout is the idle timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// copyBufferSize is the chunk size used while streaming bodies to disk.
const copyBufferSize = 64 * 1024

// ProgressFunc is called while a download streams; total is -1 when unknown.
type ProgressFunc func(written, total int64)

// Client performs HTTP requests for the launcher.
type Client struct {
	// http is the underlying client; nil until New builds the default one.
	http *http.Client
	// timeout bounds connecting, waiting for headers and each pause between
	// body reads. A transfer that keeps receiving bytes is never cut off.
	timeout time.Duration
	// limiter throttles request starts; nil means unlimited.
	limiter *rate.Limiter
	// userAgent is sent with every request.
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the idle timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRateLimit limits request starts per second; zero or less disables the limit.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}

		burst := max(int(requestsPerSecond), 1)
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
// The idle timeout still applies to every request it makes.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// New creates a client with the launcher's user agent.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:   DefaultTimeout,
		userAgent: version.UserAgent(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Transport: newTransport(c.timeout)}
	}

	return c
}

// newTransport applies timeout to connecting and to waiting for response
// headers, never to the body.
func newTransport(timeout time.Duration) *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		base = new(http.Transport)
	}

	transport := base.Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	return transport
}

// Fetch returns the whole body of url.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	response, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	return body, nil
}

// FetchJSON decodes the JSON body of url into target.
func (c *Client) FetchJSON(ctx context.Context, url string, target any) error {
	body, err := c.Fetch(ctx, url)
	if err != nil {
		return err
	}

	if err = json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%s: %w: %w", url, ErrDecode, err)
	}

	return nil
}

// Download streams url into w in fixed-size chunks and returns the number of bytes written.
func (c *Client) Download(ctx context.Context, url string, w io.Writer, progress ProgressFunc) (int64, error) {
	response, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	var reader io.Reader = response.Body
	if progress != nil {
		reader = &progressReader{
			reader:   response.Body,
			total:    response.ContentLength,
			progress: progress,
		}
	}

	written, err := io.CopyBuffer(w, reader, make([]byte, copyBufferSize))
	if err != nil {
		return written, fmt.Errorf("download %s: %w", url, err)
	}

	return written, nil
}

// get issues a GET request after waiting for the rate limiter.
// The request is canceled with ErrStalled once it goes c.timeout without
// progress; the returned body re-arms that deadline on every read.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", url, err)
		}
	}

	ctx, cancel := context.WithCancelCause(ctx)
	watchdog := time.AfterFunc(c.timeout, func() { cancel(ErrStalled) })

	release := func() {
		watchdog.Stop()
		cancel(nil)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		release()

		return nil, fmt.Errorf("build request %s: %w", url, err)
	}

	request.Header.Set("User-Agent", c.userAgent)

	response, err := c.http.Do(request)
	if err != nil {
		release()

		return nil, fmt.Errorf("get %s: %w", url, stallCause(ctx, err))
	}

	switch response.StatusCode {
	case http.StatusOK:
		response.Body = &idleBody{
			ReadCloser: response.Body,
			ctx:        ctx,
			watchdog:   watchdog,
			timeout:    c.timeout,
			release:    release,
		}

		return response, nil
	case http.StatusNotFound, http.StatusGone:
		_ = response.Body.Close()

		release()

		return nil, fmt.Errorf("%s, %s: %w", url, response.Status, ErrNotFound)
	default:
		_ = response.Body.Close()

		release()

		return nil, fmt.Errorf("%s, %s: %w", url, response.Status, ErrBadStatus)
	}
}

// stallCause attaches ErrStalled to err when the watchdog canceled ctx.
func stallCause(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrStalled) {
		return fmt.Errorf("%w: %w", ErrStalled, err)
	}

	return err
}

// idleBody pushes the stall deadline forward whenever bytes arrive.
type idleBody struct {
	io.ReadCloser

	ctx      context.Context //nolint:containedctx // The body outlives get and reports its cause.
	watchdog *time.Timer
	timeout  time.Duration
	release  func()
}

func (b *idleBody) Read(buffer []byte) (int, error) {
	n, err := b.ReadCloser.Read(buffer)
	if n > 0 {
		b.watchdog.Reset(b.timeout)
	}

	if err != nil && !errors.Is(err, io.EOF) {
		err = stallCause(b.ctx, err)
	}

	return n, err
}

func (b *idleBody) Close() error {
	defer b.release()

	return b.ReadCloser.Close()
}

// progressReader reports cumulative progress after every read.
type progressReader struct {
	reader   io.Reader
	written  int64
	total    int64
	progress ProgressFunc
}

func (p *progressReader) Read(buffer []byte) (int, error) {
	n, err := p.reader.Read(buffer)
	if n > 0 {
		p.written += int64(n)
		p.progress(p.written, p.total)
	}

	return n, err
}
