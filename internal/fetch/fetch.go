// Package fetch downloads roll scan images into the artifact tree. Downloads
// stream to a temporary file and are renamed into place only once complete, so
// an interrupted transfer never leaves a partial image that a later run would
// mistake for a finished one.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rollscan/internal/layout"
	"rollscan/internal/logging"
	"rollscan/internal/services"
)

// Downloader fetches scan images with bounded retries.
type Downloader struct {
	httpClient *http.Client
	layout     layout.Layout
	logger     *slog.Logger
	attempts   int
	backoff    time.Duration
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithRetry sets the attempt count and the base backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(d *Downloader) {
		if attempts > 0 {
			d.attempts = attempts
		}
		if backoff >= 0 {
			d.backoff = backoff
		}
	}
}

// New creates a Downloader writing into the given artifact layout.
func New(lay layout.Layout, logger *slog.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Downloader{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		layout:     lay,
		logger:     logging.NewComponentLogger(logger, "fetch"),
		attempts:   3,
		backoff:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// EnsureImage makes sure the scan image for a DRUID is present in the
// artifact tree and returns its path. A cached image is reused unless
// redownload is set.
func (d *Downloader) EnsureImage(ctx context.Context, druid, imageURL string, redownload bool) (string, error) {
	target := d.layout.Path(druid, layout.KindImage)

	if !redownload && d.layout.Complete(druid, layout.KindImage) {
		d.logger.DebugContext(ctx, "image already cached",
			logging.String(logging.FieldDruid, druid),
			logging.String("path", target))
		return target, nil
	}
	if imageURL == "" {
		return "", services.Wrap(services.ErrValidation, "image", "download", "no image url for druid "+druid, nil)
	}

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		d.logger.InfoContext(ctx, "downloading roll image",
			logging.String(logging.FieldDruid, druid),
			logging.String("url", imageURL),
			logging.Int("attempt", attempt))

		written, err := d.downloadOnce(ctx, imageURL, target)
		if err == nil {
			d.logger.InfoContext(ctx, "image downloaded",
				logging.String(logging.FieldDruid, druid),
				logging.Int64("bytes", written))
			return target, nil
		}
		lastErr = err

		if !services.Retryable(err) || attempt == d.attempts {
			break
		}
		if err := d.sleep(ctx, backoffDelay(d.backoff, attempt)); err != nil {
			return "", err
		}
	}
	return "", services.Wrap(services.ErrDownload, "image", "download",
		fmt.Sprintf("failed after %d attempts", d.attempts), lastErr)
}

func (d *Downloader) downloadOnce(ctx context.Context, imageURL, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, services.Wrap(services.ErrDownload, "image", "request", "execute request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return 0, services.Wrap(services.ErrDownload, "image", "request",
			fmt.Sprintf("image request returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return 0, services.Wrap(services.ErrNotFound, "image", "request", "image not found", nil)
	default:
		// Other client errors will not improve with retries.
		return 0, services.Wrap(services.ErrValidation, "image", "request",
			fmt.Sprintf("image request returned %d", resp.StatusCode), nil)
	}

	return layout.WriteAtomic(target, resp.Body)
}

// backoffDelay doubles the base delay with each attempt: base, 2*base,
// 4*base, and so on.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

func (d *Downloader) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
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
