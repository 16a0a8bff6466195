package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "studalarm/internal/log"
)

const maxPayloadBytes = 8 << 20

var (
	// ErrFetchFailed matches every *FetchError via errors.Is.
	ErrFetchFailed = errors.New("schedule fetch failed")
	// ErrEmptyGroup is returned before any request is made.
	ErrEmptyGroup = errors.New("не указан номер группы")
	errNoGrid     = errors.New("response has no grid")
)

// FetchError is the final error after all attempts were spent.
type FetchError struct {
	Group    string
	Attempts int
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("schedule fetch for group %q failed after %d attempt(s): %v", e.Group, e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Cause}
}

// FetcherConfig configures the schedule source.
type FetcherConfig struct {
	BaseURL  string
	Referer  string
	Attempts int
	Timeout  time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Fetcher downloads the raw group grid.
type Fetcher struct {
	client   *http.Client
	baseURL  string
	referer  string
	attempts int
}

// NewFetcher creates a Fetcher. Zero attempts or timeout fall back to 2 and
// 15 seconds.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client:   client,
		baseURL:  cfg.BaseURL,
		referer:  cfg.Referer,
		attempts: cfg.Attempts,
	}
}

// Fetch tries the regular endpoint, then the session variant, alternating
// until the attempt budget is spent.
func (f *Fetcher) Fetch(ctx context.Context, group string) (Raw, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return Raw{}, ErrEmptyGroup
	}

	var (
		lastErr error
		tried   int
	)
	for i := 0; i < f.attempts; i++ {
		session := i%2 == 1
		tried++
		raw, err := f.fetchOnce(ctx, group, session)
		if err == nil {
			appLog.Info("schedule fetch success", "group", group, "session", session, "attempt", tried, "days", len(raw.Grid))
			return raw, nil
		}
		lastErr = err
		appLog.Warn("schedule fetch attempt failed", "group", group, "session", session, "attempt", tried, "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return Raw{}, &FetchError{Group: group, Attempts: tried, Cause: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, group string, session bool) (Raw, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return Raw{}, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("group", group)
	if session {
		q.Set("session", "1")
	} else {
		q.Set("session", "0")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Raw{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "studalarm/1.0")
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Raw{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Raw{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return Raw{}, fmt.Errorf("read body: %w", err)
	}
	raw, err := DecodeRaw(body)
	if err != nil {
		return Raw{}, fmt.Errorf("decode body: %w", err)
	}
	if raw.Grid == nil {
		return Raw{}, errNoGrid
	}
	if session {
		raw.IsSession = true
	}
	return raw, nil
}
