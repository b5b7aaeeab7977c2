// Package sender runs best-effort Telegram calls off the update goroutine.
// The relay uses it for cleanup: deleting status messages and triggers
// after a voice reply has been produced.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/voxbot/core/logger"
	"github.com/m3rciful/voxbot/core/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errRetryBudget = errors.New("telegram sender: retry delay exceeds job budget")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job, retries included.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
	queued   time.Time
}

// Dispatcher executes queued Telegram calls on a fixed worker pool.
// Transient network errors and flood waits are retried; anything else fails
// the job at once.
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	done atomic.Uint64
	errs atomic.Uint64

	mu       sync.Mutex
	failures map[string]uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts:     opts,
		jobs:     make(chan job, opts.QueueSize),
		stop:     make(chan struct{}),
		failures: make(map[string]uint64),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules run. The job keeps ctx values for logging but not its
// cancellation: cleanup still happens after the update has been handled.
// run must be safe to call more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), action: action, endpoint: endpoint, run: run, queued: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Failures returns failed job counts keyed by action.
func (d *Dispatcher) Failures() map[string]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.failures)
}

// Close drains queued jobs and stops the workers.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
		d.wg.Wait()

		attrs := []slog.Attr{
			slog.Uint64("done", d.done.Load()),
			slog.Uint64("failed", d.errs.Load()),
		}
		for action, n := range d.Failures() {
			attrs = append(attrs, slog.Uint64("failed_"+action, n))
		}
		logger.Info(context.Background(), "tg.sender", "sender.closed", attrs...)
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handle(j)
	}
}

func (d *Dispatcher) handle(j job) {
	start := time.Now()
	attempts, err := d.attempt(j)
	if err == nil {
		d.done.Add(1)
		attrs := sendLogAttrs(j.ctx, j)
		if attempts > 1 {
			attrs = append(attrs, slog.Int("attempt", attempts))
		}
		attrs = append(attrs,
			slog.Int("elapsed_ms", durationToMS(time.Since(start))),
			slog.Int("queued_ms", durationToMS(start.Sub(j.queued))),
		)
		logger.Debug(j.ctx, "tg.sender", "send.success", attrs...)
		return
	}

	d.errs.Add(1)
	d.mu.Lock()
	d.failures[j.action]++
	d.mu.Unlock()

	attrs := append(sendLogAttrs(j.ctx, j),
		slog.String("error", sanitizeErrorMessage(err)),
		slog.String("error_kind", classifyError(err)),
		slog.Int("attempts", attempts),
		slog.Int("elapsed_ms", durationToMS(time.Since(start))),
	)
	logger.Warn(j.ctx, "tg.sender", "send.fail", attrs...)
}

// attempt runs j until it succeeds, fails permanently or runs out of
// retries or time. It reports how many calls were made.
func (d *Dispatcher) attempt(j job) (int, error) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	maxAttempts := d.opts.MaxRetries + 1
	for n := 1; ; n++ {
		err := j.run()
		if err == nil {
			return n, nil
		}
		if n == maxAttempts {
			return n, err
		}
		delay, ok := d.retryDelay(err, n)
		if !ok {
			return n, err
		}
		if deadline, has := ctx.Deadline(); has && time.Until(deadline) < delay {
			return n, errors.Join(err, errRetryBudget)
		}

		logger.Debug(j.ctx, "tg.sender", "send.retry",
			append(sendLogAttrs(j.ctx, j),
				slog.Int("attempt", n),
				slog.Duration("delay", delay),
				slog.String("error_kind", classifyError(err)),
			)...,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// retryDelay waits out Telegram flood control and backs off linearly on
// transient network errors.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if netutil.ShouldRetry(err) {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func sendLogAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if chatID := logger.ChatIDFrom(ctx); chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	return attrs
}

func durationToMS(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(logger.RoundMS(d) / time.Millisecond)
}

// classifyError buckets an error for the error_kind log field.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}
	switch status := httpStatusFromError(err); {
	case status == http.StatusTooManyRequests:
		return "flood"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	if netutil.ShouldRetry(err) {
		return "network"
	}
	return "unknown"
}

// sanitizeErrorMessage keeps bot tokens out of logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// httpStatusFromError reads the Bot API status from typed errors, or from
// the trailing "(NNN)" telebot appends to plain ones.
func httpStatusFromError(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}

	msg := strings.TrimSpace(err.Error())
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndex(msg, "(")
	if open < 0 {
		return 0
	}
	code, convErr := strconv.Atoi(msg[open+1 : len(msg)-1])
	if convErr != nil {
		return 0
	}
	return code
}
