// Package pdf provides downloading and caching of candidate documents.
package pdf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/helixir/review-generation-service/internal/domain"
)

// Sentinel errors for download operations.
var (
	// ErrNotPDF is returned when the response does not look like a PDF.
	ErrNotPDF = errors.New("pdf: response is not a PDF")
	// ErrTooLarge is returned when the file exceeds the maximum allowed size.
	ErrTooLarge = errors.New("pdf: file exceeds maximum size")
	// ErrDownloadFailed is returned when the download fails after retries.
	ErrDownloadFailed = errors.New("pdf: download failed")
	// ErrSSRF is returned when the URL resolves to a private network address.
	ErrSSRF = errors.New("pdf: request to private network denied")
)

// DownloadResult holds a successfully downloaded document.
type DownloadResult struct {
	// Content is the raw file bytes.
	Content []byte
	// ContentHash is the SHA-256 hex digest of the content.
	ContentHash string
	// SizeBytes is the size of the content in bytes.
	SizeBytes int64
	// ContentType is the Content-Type header from the response.
	ContentType string
}

// Config holds downloader configuration.
type Config struct {
	// Timeout is the per-request HTTP timeout. Default: 30 seconds.
	Timeout time.Duration
	// MaxSize is the maximum file size in bytes. Default: 50MB.
	MaxSize int64
	// MaxRetries is the retry budget for transient failures. Default: 3.
	MaxRetries int
	// UserAgent is the User-Agent header.
	UserAgent string
	// AllowPrivateNetworks disables the SSRF private-IP checks. Test use only.
	AllowPrivateNetworks bool
}

// Downloader fetches candidate documents over HTTP with bounded retries.
// Transient failures (429, 5xx, network errors) are retried with backoff;
// client errors are permanent and reported as domain.ErrUnavailable so the
// pipeline skips the document instead of retrying it.
type Downloader struct {
	client               *http.Client
	maxSize              int64
	maxRetries           int
	userAgent            string
	allowPrivateNetworks bool
}

// NewDownloader creates a Downloader with the given configuration.
func NewDownloader(cfg Config) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 50 * 1024 * 1024
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; ReviewGenerationService/1.0)"
	}

	d := &Downloader{
		maxSize:              cfg.MaxSize,
		maxRetries:           cfg.MaxRetries,
		userAgent:            cfg.UserAgent,
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
	}

	d.client = &http.Client{
		Timeout: cfg.Timeout,
		// Validate each redirect URL so an open redirect cannot land the
		// request on an internal network address.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("%w: too many redirects", ErrSSRF)
			}
			if !d.allowPrivateNetworks {
				if err := validateURLNotPrivate(req.URL.String()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	return d
}

// Download fetches a document from the given URL.
//
// Returns domain.ErrUnavailable for permanent failures (bad scheme, 4xx,
// non-PDF content) so the caller can skip the document, ErrTooLarge for
// oversized files, and ErrDownloadFailed once transient retries are
// exhausted.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*DownloadResult, error) {
	if err := validateScheme(rawURL); err != nil {
		return nil, err
	}
	if !d.allowPrivateNetworks {
		if err := validateURLNotPrivate(rawURL); err != nil {
			return nil, err
		}
	}

	var result *DownloadResult
	err := retry.Do(
		func() error {
			var err error
			result, err = d.fetch(ctx, rawURL)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.maxRetries)+1),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransientDownloadError),
	)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// fetch performs one download attempt.
func (d *Downloader) fetch(ctx context.Context, rawURL string) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", domain.ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// proceed
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	default:
		// Client errors are permanent for this URL.
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrUnavailable, resp.StatusCode)
	}

	// Read one extra byte past the cap to detect oversized files.
	content, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDownloadFailed, err)
	}
	if int64(len(content)) > d.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, d.maxSize)
	}

	// Some repositories serve PDFs with generic content types, so accept
	// either the header or the file magic.
	contentType := resp.Header.Get("Content-Type")
	if !looksLikePDF(contentType, content) {
		return nil, fmt.Errorf("%w: Content-Type %q: %v", domain.ErrUnavailable, contentType, ErrNotPDF)
	}

	hash := sha256.Sum256(content)
	return &DownloadResult{
		Content:     content,
		ContentHash: hex.EncodeToString(hash[:]),
		SizeBytes:   int64(len(content)),
		ContentType: contentType,
	}, nil
}

// isTransientDownloadError reports whether a failed attempt should be retried.
func isTransientDownloadError(err error) bool {
	return errors.Is(err, ErrDownloadFailed)
}

// looksLikePDF accepts a response as a PDF when either the Content-Type says
// so or the body starts with the %PDF magic bytes.
func looksLikePDF(contentType string, content []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return len(content) >= 4 && string(content[:4]) == "%PDF"
}

// validateScheme rejects non-HTTP(S) URLs before any network activity.
func validateScheme(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", domain.ErrUnavailable, parsed.Scheme)
	}
}

// isPrivateIP reports whether the IP is in a private, loopback, or otherwise
// non-routable range, for both IPv4 and IPv6.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	return ip.IsPrivate()
}

// validateURLNotPrivate resolves the hostname and rejects private IPs.
func validateURLNotPrivate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSSRF, err)
	}

	host := parsed.Hostname()
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %v", ErrDownloadFailed, host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to private address %s", ErrSSRF, host, ipStr)
		}
	}
	return nil
}
