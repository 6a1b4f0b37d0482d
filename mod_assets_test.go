package glowstage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFetcher_ReadsFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.glb")
	require.NoError(t, os.WriteFile(path, []byte("glb bytes"), 0o644))

	data, err := NewDefaultFetcher().Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "glb bytes", string(data))

	_, err = NewDefaultFetcher().Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.glb"))
	assert.Error(t, err)
}

func TestDefaultFetcher_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mascot.glb":
			w.Write([]byte("0123456789"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewDefaultFetcher()
	data, err := f.Fetch(context.Background(), srv.URL+"/mascot.glb")
	require.NoError(t, err)
	assert.Len(t, data, 10)

	_, err = f.Fetch(context.Background(), srv.URL+"/other.glb")
	assert.ErrorContains(t, err, "404")

	f.MaxSize = 4
	_, err = f.Fetch(context.Background(), srv.URL+"/mascot.glb")
	assert.ErrorContains(t, err, "exceeds")
}

func TestDefaultFetcher_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDefaultFetcher().Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultFetcher_EmptyLocation(t *testing.T) {
	_, err := NewDefaultFetcher().Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyAssetLocation)
}

func TestMakeAssetId_Unique(t *testing.T) {
	seen := make(map[AssetId]bool)
	for i := 0; i < 100; i++ {
		id := makeAssetId()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
