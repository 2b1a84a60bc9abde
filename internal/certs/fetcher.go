package certs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
	"git.home.luguber.info/inful/fwbuilder/internal/retry"
)

// maxDocumentBytes caps a downloaded PEM document.
const maxDocumentBytes = 1 << 20

// Fetcher downloads the intermediate and root certificates of the CA chain.
type Fetcher struct {
	client          *http.Client
	intermediateURL string
	rootURL         string
	timeout         time.Duration
	policy          retry.Policy
	recorder        metrics.Recorder
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithRecorder attaches a metrics recorder for retry counts.
func WithRecorder(r metrics.Recorder) FetcherOption {
	return func(f *Fetcher) {
		if r != nil {
			f.recorder = r
		}
	}
}

// NewFetcher creates a fetcher for the given chain URLs. timeout bounds each
// individual attempt.
func NewFetcher(intermediateURL, rootURL string, timeout time.Duration, policy retry.Policy, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:          &http.Client{},
		intermediateURL: intermediateURL,
		rootURL:         rootURL,
		timeout:         timeout,
		policy:          policy,
		recorder:        metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchChain downloads both documents and joins them intermediate first.
func (f *Fetcher) FetchChain(ctx context.Context) ([]byte, error) {
	slog.Info("Downloading intermediate certificate", logfields.URL(f.intermediateURL))
	intermediate, err := f.Fetch(ctx, f.intermediateURL)
	if err != nil {
		return nil, err
	}

	slog.Info("Downloading root certificate", logfields.URL(f.rootURL))
	root, err := f.Fetch(ctx, f.rootURL)
	if err != nil {
		return nil, err
	}
	return JoinChain(intermediate, root), nil
}

// Fetch downloads one document, retrying transport errors and non-2xx
// responses according to the policy.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	var body []byte
	attempt := 0
	err := retry.Do(ctx, f.policy, func(n int, err error, delay time.Duration) {
		f.recorder.IncFetchRetry(host)
		slog.Warn("Certificate download failed, retrying",
			logfields.URL(rawURL),
			logfields.Attempt(n),
			slog.Duration("delay", delay),
			logfields.Error(err))
	}, func(ctx context.Context) error {
		attempt++
		b, err := f.fetchOnce(ctx, rawURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, errors.NetworkError("certificate download failed").
			WithCause(err).
			Fatal().
			WithContext("url", rawURL).
			WithContext("attempts", attempt).
			Build()
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentBytes))
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

// JoinChain concatenates the trimmed intermediate and root documents, each
// terminated by a single newline.
func JoinChain(intermediate, root []byte) []byte {
	var buf bytes.Buffer
	buf.Write(bytes.TrimSpace(intermediate))
	buf.WriteByte('\n')
	buf.Write(bytes.TrimSpace(root))
	buf.WriteByte('\n')
	return buf.Bytes()
}
