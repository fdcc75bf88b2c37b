package files

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Prober checks whether a resolved file reference is actually reachable.
// The merge dry-run uses this to report inaccessible inputs before a job
// is ever created.
type Prober interface {
	Probe(ctx context.Context, ref Reference) error
}

// AccessProber probes local paths with a stat call and remote URLs with a
// bounded HEAD request.
type AccessProber struct {
	client  *http.Client
	timeout time.Duration
}

func NewAccessProber(timeoutMs int) *AccessProber {
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AccessProber{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (p *AccessProber) Probe(ctx context.Context, ref Reference) error {
	// A local path is preferred: workers on the same storage can read it
	// directly and a stat is cheaper than a round trip. Callers may also
	// hand a plain filesystem path in the URL field.
	local := ref.Path
	if local == "" {
		local = ref.URL
	}
	if local != "" && !strings.HasPrefix(local, "http") {
		if _, err := os.Stat(local); err != nil {
			return fmt.Errorf("stat %s: %w", local, err)
		}
		return nil
	}

	url := ref.URL
	if url == "" {
		url = ref.Path
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("head %s: status %d", url, resp.StatusCode)
	}
	return nil
}
