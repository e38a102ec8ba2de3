package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadsync/internal/resilience"
)

// ErrTooLarge is returned when a document exceeds HTTPOptions.MaxBytes.
var ErrTooLarge = eris.New("fetcher: document too large")

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// BearerToken is sent as an Authorization header when set.
	BearerToken string
	// MaxBytes caps the document size. Zero means unlimited.
	MaxBytes int64
	// RequestsPerSecond paces requests. Zero means 5/s.
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
}

// HTTPFetcher implements Fetcher over net/http with retry and pacing.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "leadsync/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
}

// statusError is a non-200 response.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.code, e.url)
}

// DownloadToDir fetches url into a temp file under dir. Rate limiting and
// 5xx responses are retried; other statuses fail immediately. A partial
// file is removed on error.
func (f *HTTPFetcher) DownloadToDir(ctx context.Context, url, dir string) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, eris.Wrap(err, "fetcher: create dir")
	}

	cfg := f.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("fetch_document", zap.String("url", url))
	}

	var (
		path string
		n    int64
	)
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		path, n, err = f.downloadOnce(ctx, url, dir)
		return err
	})
	if err != nil {
		return "", 0, eris.Wrapf(err, "fetcher: download %s", url)
	}

	zap.L().Info("fetcher: document downloaded",
		zap.String("url", url),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return path, n, nil
}

func (f *HTTPFetcher) downloadOnce(ctx context.Context, url, dir string) (string, int64, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", 0, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	if f.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.opts.BearerToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, resilience.NewTransientError(err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		serr := &statusError{code: resp.StatusCode, url: url}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", 0, resilience.NewTransientError(serr)
		}
		return "", 0, serr
	}

	if f.opts.MaxBytes > 0 && resp.ContentLength > f.opts.MaxBytes {
		return "", 0, ErrTooLarge
	}

	file, err := os.CreateTemp(dir, "fetch-*.json")
	if err != nil {
		return "", 0, eris.Wrap(err, "create file")
	}

	body := io.Reader(resp.Body)
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	n, err := io.Copy(file, body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	switch {
	case err != nil:
		_ = os.Remove(file.Name())
		return "", 0, resilience.NewTransientError(eris.Wrap(err, "write file"))
	case f.opts.MaxBytes > 0 && n > f.opts.MaxBytes:
		_ = os.Remove(file.Name())
		return "", 0, ErrTooLarge
	}
	return file.Name(), n, nil
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code
	}
	return 0
}
