package binary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

const (
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "embedmq/1.0"
	// maxRedirects bounds redirect chains (GitHub release assets redirect once or twice)
	maxRedirects = 10
)

// FetchOptions describes a single artifact fetch.
type FetchOptions struct {
	URL    string
	Target string

	// ConnectTimeout bounds connection establishment (TCP, proxy and TLS handshake).
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers and any stall between body reads.
	ReadTimeout time.Duration

	// Proxy routes the request through an http, https or socks5 proxy. Nil means direct.
	Proxy *url.URL

	// UseCache skips the network when Target already exists and is non-empty.
	UseCache bool
	// DeleteOnError removes Target when the fetch fails.
	DeleteOnError bool
	// Lock serializes fetches of the same Target across processes.
	Lock bool
}

// Downloader handles HTTP downloads into a local cache file.
type Downloader struct {
	logger    log.Logger
	userAgent string
	// lockPoll is how often a held cache lock is re-checked.
	lockPoll time.Duration
}

// NewDownloader creates a new downloader
func NewDownloader(logger log.Logger) *Downloader {
	return &Downloader{
		logger:    log.OrNoop(logger),
		userAgent: DefaultUserAgent,
		lockPoll:  100 * time.Millisecond,
	}
}

// Fetch downloads opts.URL to opts.Target and returns the local path.
func (d *Downloader) Fetch(ctx context.Context, opts FetchOptions) (string, error) {
	if opts.URL == "" || opts.Target == "" {
		return "", &DownloadError{URL: opts.URL, Path: opts.Target, Err: errors.New("URL and target are required")}
	}

	if opts.UseCache && fileExists(opts.Target) {
		d.logger.Debug("using cached artifact", "path", opts.Target)
		return opts.Target, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Target), 0755); err != nil {
		return "", &DownloadError{URL: opts.URL, Path: opts.Target, Err: fmt.Errorf("create dest dir: %w", err)}
	}

	if opts.Lock {
		lock, err := AcquireLock(ctx, opts.Target+".lock", d.lockPoll)
		if err != nil {
			return "", &DownloadError{URL: opts.URL, Path: opts.Target, Err: err}
		}
		defer func() {
			if err := lock.Release(); err != nil {
				d.logger.Warn("release download lock", "path", opts.Target, "error", err)
			}
		}()

		// Another process may have filled the cache while we waited.
		if opts.UseCache && fileExists(opts.Target) {
			d.logger.Debug("using artifact cached by another process", "path", opts.Target)
			return opts.Target, nil
		}
	}

	start := time.Now()
	d.logger.Info("downloading artifact", "url", opts.URL, "target", opts.Target)

	written, err := d.downloadOnce(ctx, opts)
	if err != nil {
		if opts.DeleteOnError {
			if rmErr := os.Remove(opts.Target); rmErr != nil && !os.IsNotExist(rmErr) {
				d.logger.Warn("remove partial download", "path", opts.Target, "error", rmErr)
			}
		}
		return "", &DownloadError{URL: opts.URL, Path: opts.Target, Err: err}
	}

	d.logger.Info("download complete", "path", opts.Target, "bytes", written, "elapsed", time.Since(start))
	return opts.Target, nil
}

// downloadOnce performs a single download attempt, streaming into opts.Target.
func (d *Downloader) downloadOnce(ctx context.Context, opts FetchOptions) (int64, error) {
	client, err := newHTTPClient(opts)
	if err != nil {
		return 0, err
	}
	defer client.CloseIdleConnections()

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	out, err := os.OpenFile(opts.Target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("create target file: %w", err)
	}

	body := io.Reader(resp.Body)
	var stall *stallReader
	if opts.ReadTimeout > 0 {
		stall = newStallReader(resp.Body, opts.ReadTimeout, cancel)
		defer stall.stop()
		body = stall
	}

	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		if stall != nil && stall.tripped() {
			return written, fmt.Errorf("read stalled for more than %s: %w", opts.ReadTimeout, copyErr)
		}
		return written, fmt.Errorf("copy response body: %w", copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("close target file: %w", closeErr)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return written, fmt.Errorf("short body: got %d of %d bytes", written, resp.ContentLength)
	}

	return written, nil
}

// newHTTPClient builds a client honoring the connect/read timeouts and proxy.
func newHTTPClient(opts FetchOptions) (*http.Client, error) {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		ForceAttemptHTTP2:     true,
	}

	if opts.Proxy != nil {
		switch opts.Proxy.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(opts.Proxy)
		case "socks5", "socks5h":
			socks, err := proxy.FromURL(opts.Proxy, dialer)
			if err != nil {
				return nil, fmt.Errorf("configure proxy %s: %w", opts.Proxy.Redacted(), err)
			}
			contextDialer, ok := socks.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("proxy %s does not support context dialing", opts.Proxy.Redacted())
			}
			transport.DialContext = contextDialer.DialContext
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s", opts.Proxy.Scheme)
		}
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}, nil
}

// stallReader cancels the request when no Read completes within timeout.
type stallReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer

	mu    sync.Mutex
	fired bool
}

func newStallReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *stallReader {
	s := &stallReader{r: r, timeout: timeout}
	s.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.fired = true
		s.mu.Unlock()
		cancel()
	})
	return s
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.timer.Reset(s.timeout)
	}
	return n, err
}

func (s *stallReader) stop() {
	s.timer.Stop()
}

func (s *stallReader) tripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// fileExists checks if a file exists and is not empty
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
