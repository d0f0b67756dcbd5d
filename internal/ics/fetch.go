package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "icalmerge/internal/log"
)

const defaultFetchTimeout = 15 * time.Second

// maxBodyBytes bounds a single feed download.
var maxBodyBytes int64 = 32 << 20

// ErrBodyTooLarge is wrapped by a FetchError when a feed exceeds maxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// Source represents a single ICS subscription source.
type Source struct {
	// ID is an internal identifier used for logging and errors.
	ID string
	// URL is the ICS endpoint.
	URL string
}

// FetchError reports a failed retrieval of one source: a network error,
// a timeout, or a non-2xx status.
type FetchError struct {
	Source     Source
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (%s): status %d", e.Source.ID, RedactURL(e.Source.URL), e.StatusCode)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Source.ID, RedactURL(e.Source.URL), e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline or client timeout.
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}

// Fetcher retrieves raw ICS text over HTTP.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher whose requests are bounded by timeout.
// A non-positive timeout uses 15s.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewFetcherWithClient creates a Fetcher using the given client.
func NewFetcherWithClient(c *http.Client) *Fetcher {
	return &Fetcher{client: c}
}

// Fetch downloads the body of src.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, &FetchError{Source: src, Err: errors.New("source URL is empty")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, &FetchError{Source: src, Err: err}
	}
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.5")

	appLog.Debug("ics fetch start", "id", src.ID, "url", RedactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: src, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Source: src, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{Source: src, Err: err}
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, &FetchError{Source: src, Err: fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, maxBodyBytes)}
	}

	appLog.Info("ics fetch success", "id", src.ID, "url", RedactURL(src.URL), "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

// RedactURL hides sensitive parts of an ICS URL for logging purposes.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	// Find scheme separator.
	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	// Find next slash after host.
	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}

	return u[:j] + redactedSuffix
}
