package glowstage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetId names a GPU-resident resource (geometry, material or texture).
type AssetId string

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}

var ErrEmptyAssetLocation = errors.New("asset location is empty")

// AssetFetcher returns the raw bytes of an external asset.
type AssetFetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// DefaultFetcher reads http(s) URLs over the network and everything else from disk.
type DefaultFetcher struct {
	Client  *http.Client
	MaxSize int64
}

func NewDefaultFetcher() *DefaultFetcher {
	return &DefaultFetcher{
		Client:  &http.Client{Timeout: 30 * time.Second},
		MaxSize: 64 << 20,
	}
}

func (f *DefaultFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, ErrEmptyAssetLocation
	}
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read asset %s: %w", location, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", location, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch asset %s: unexpected status %s", location, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read asset body %s: %w", location, err)
	}
	if int64(len(data)) > f.MaxSize {
		return nil, fmt.Errorf("asset %s exceeds %d bytes", location, f.MaxSize)
	}
	return data, nil
}
