// Package threatintel downloads the threat feed, keeps the on-disk cache and
// derives the list of networks to block.
package threatintel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"grimm.is/droplist/internal/clock"
	"grimm.is/droplist/internal/errors"
	"grimm.is/droplist/internal/logging"
	"grimm.is/droplist/internal/retry"
)

// maxFeedSize caps the downloaded body. Spamhaus DROP is a few tens of KB.
const maxFeedSize = 32 << 20

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	URL           string
	CommentPrefix string
	// Timeout bounds the whole request. Zero disables it.
	Timeout   time.Duration
	UserAgent string
	// Retries is the number of extra attempts after a transport failure or
	// 5xx response. RetryDelay is the first backoff step.
	Retries    int
	RetryDelay time.Duration
}

// Result describes one successful fetch.
type Result struct {
	Entries   []string
	Rejected  []Rejected
	FetchedAt time.Time
	Size      int
	// ParseErr is set when the content could not be scanned; Entries is then empty.
	ParseErr error
}

// Fetcher downloads the feed into a Cache.
type Fetcher struct {
	cfg    FetcherConfig
	cache  *Cache
	client *http.Client
	clock  clock.Clock
	logger *logging.Logger
}

// NewFetcher creates a fetcher writing into cache.
func NewFetcher(cfg FetcherConfig, cache *Cache, clk clock.Clock, logger *logging.Logger) *Fetcher {
	if clk == nil {
		clk = clock.Default
	}
	if logger == nil {
		logger = logging.WithComponent("feed")
	}
	return &Fetcher{
		cfg:    cfg,
		cache:  cache,
		client: &http.Client{Timeout: cfg.Timeout},
		clock:  clk,
		logger: logger,
	}
}

// Cache returns the cache the fetcher writes into.
func (f *Fetcher) Cache() *Cache {
	return f.cache
}

// Fetch downloads the feed and replaces the cache.
//
// A transport failure or non-2xx status returns a KindFetch error and leaves
// every cache artifact untouched. Otherwise the raw blob is written, the
// content parsed, and the timestamp and entry list replaced together.
func (f *Fetcher) Fetch(ctx context.Context) (*Result, error) {
	body, err := retry.DoWithResult(ctx, f.retryConfig(), func() ([]byte, error) {
		body, err := f.download(ctx)
		if err != nil && retry.IsTemporary(err) {
			f.logger.Debug("feed download failed", "error", err)
		}
		return body, err
	})
	if err != nil {
		if !errors.IsKind(err, errors.KindFetch) {
			err = errors.Wrap(err, errors.KindFetch, "fetch aborted")
		}
		return nil, err
	}

	if err := f.cache.WriteRaw(body); err != nil {
		return nil, err
	}

	res := &Result{
		FetchedAt: f.clock.Now(),
		Size:      len(body),
	}
	res.Entries, res.Rejected, res.ParseErr = ParseEntries(bytes.NewReader(body), f.cfg.CommentPrefix)

	for _, r := range res.Rejected {
		f.logger.Warn("skipping invalid feed entry", "line", r.Line, "token", r.Token)
	}
	if res.ParseErr != nil {
		f.logger.Error("feed content is malformed, using empty list", "error", res.ParseErr)
	}

	if err := f.cache.Commit(res.FetchedAt, res.Entries); err != nil {
		return nil, err
	}

	f.logger.Info("feed fetched", "bytes", res.Size, "entries", len(res.Entries), "rejected", len(res.Rejected))
	return res, nil
}

func (f *Fetcher) retryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = f.cfg.Retries + 1
	if f.cfg.RetryDelay > 0 {
		cfg.InitialDelay = f.cfg.RetryDelay
	}
	cfg.RetryableErrors = []error{retry.ErrTemporary}
	return cfg
}

// download performs one GET. Transport failures and 5xx responses are
// marked temporary.
func (f *Fetcher) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindFetch, "invalid feed url %q", f.cfg.URL)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, retry.Temporary(errors.Wrap(err, errors.KindFetch, "http get failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := errors.Attr(
			errors.Errorf(errors.KindFetch, "http status %d", resp.StatusCode),
			"status", resp.StatusCode)
		if resp.StatusCode >= 500 {
			return nil, retry.Temporary(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize+1))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFetch, "failed to read feed body")
	}
	if len(body) > maxFeedSize {
		return nil, errors.New(errors.KindFetch, fmt.Sprintf("feed exceeds %d bytes", maxFeedSize))
	}
	return body, nil
}
