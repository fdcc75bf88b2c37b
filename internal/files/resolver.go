package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bindery/internal/config"
)

// ErrFileNotFound is returned when a file identifier cannot be resolved.
var ErrFileNotFound = errors.New("file not found")

// Reference is a resolved file location. URL is always set for resolvable
// files; Path is set additionally when the file lives on shared storage
// reachable from this process.
type Reference struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url"`
}

// Resolver turns opaque file identifiers into fetchable locations.
type Resolver interface {
	Resolve(ctx context.Context, fileID string) (Reference, error)
}

// ServiceResolver resolves file identifiers against the external file
// storage service.
type ServiceResolver struct {
	baseURL string
	client  *http.Client
}

func NewServiceResolver(cfg config.FileServiceConfig) *ServiceResolver {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ServiceResolver{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *ServiceResolver) Resolve(ctx context.Context, fileID string) (Reference, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/files/"+fileID, nil)
	if err != nil {
		return Reference{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Reference{}, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Reference{}, ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Reference{}, fmt.Errorf("resolve file %s: unexpected status %d", fileID, resp.StatusCode)
	}

	var ref Reference
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return Reference{}, fmt.Errorf("resolve file %s: decode response: %w", fileID, err)
	}
	if ref.URL == "" && ref.Path == "" {
		return Reference{}, ErrFileNotFound
	}
	return ref, nil
}
