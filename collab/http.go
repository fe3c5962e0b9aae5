package collab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/midnightbsd/go-mport/errs"
)

// DefaultFetchTimeout is the 120-second HTTP deadline spec §5 specifies for
// index and audit fetches.
const DefaultFetchTimeout = 120 * time.Second

// HTTPFetcher is the real-world HttpFetcher backed by *http.Client. Client
// defaults to one with DefaultFetchTimeout if left nil.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher with the spec-mandated default
// timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: DefaultFetchTimeout}}
}

// Get fetches url, returning ErrFetchTimeout-classified errs.Error if the
// client's deadline is exceeded.
func (f *HTTPFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.Fatal, "collab.Get", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		var ne net.Error
		if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
			return nil, errs.New(errs.FetchTimeout, "collab.Get", err)
		}
		return nil, errs.New(errs.Fatal, "collab.Get", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.Fatal, "collab.Get", fmt.Errorf("unexpected status %s for %s", resp.Status, url))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.Fatal, "collab.Get", err)
	}
	return data, nil
}
