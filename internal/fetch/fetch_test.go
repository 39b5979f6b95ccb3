package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const source = "atpk-name: demo\n!AUTOMATON\nname: A\n"

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.atpk":
			w.Write([]byte(source))
		case "/gone.atpk":
			http.Error(w, "gone", http.StatusGone)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(time.Second)

	got, err := f.Fetch(context.Background(), srv.URL+"/ok.atpk")
	require.NoError(t, err)
	assert.Equal(t, source, got)

	tests := []struct {
		path   string
		status int
	}{
		{"/missing.atpk", http.StatusNotFound},
		{"/gone.atpk", http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), srv.URL+tt.path)
			var fe *FetchError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, srv.URL+tt.path, fe.URL)
		})
	}
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(time.Second).Fetch(context.Background(), addr+"/pkg.atpk")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
	assert.Error(t, fe.Err)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(50*time.Millisecond).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
}

func TestFetch_LocalFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg.atpk")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o600))

	f := New(0)

	got, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, source, got)

	got, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, source, got)

	_, err = f.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.atpk"))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	_, err := New(0).Fetch(context.Background(), "ftp://example.com/pkg.atpk")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "unsupported scheme")
}
