package httpclient

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

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		want        string
	}{
		{
			name:        "given plain filename, then extracted",
			disposition: `attachment; filename=report.pdf`,
			want:        "report.pdf",
		},
		{
			name:        "given quoted filename, then unquoted",
			disposition: `attachment; filename="quarterly report.pdf"`,
			want:        "quarterly report.pdf",
		},
		{
			name:        "given extended form, then percent decoding applies",
			disposition: `attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`,
			want:        "résumé.pdf",
		},
		{
			name:        "given both forms, then the extended one wins",
			disposition: `attachment; filename="plain.pdf"; filename*=UTF-8''f%C3%BCr.pdf`,
			want:        "für.pdf",
		},
		{
			name:        "given no filename, then empty",
			disposition: `inline`,
			want:        "",
		},
		{
			name:        "given empty header, then empty",
			disposition: "",
			want:        "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filenameFromDisposition(tt.disposition))
		})
	}
}

func TestDownloadWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Disposition", `attachment; filename=export.csv`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("a,b\n1,2\n")) //nolint:errcheck
	}))
	defer server.Close()

	dir := t.TempDir()
	client := New()

	path, err := client.Download(context.Background(), server.URL+"/files/1", nil, dir, "fallback.csv")
	require.NoError(t, err)

	// The header-provided name wins over the argument.
	assert.Equal(t, filepath.Join(dir, "export.csv"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))
}

func TestDownloadFallsBackToArgument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("payload")) //nolint:errcheck
	}))
	defer server.Close()

	dir := t.TempDir()
	client := New()

	path, err := client.Download(context.Background(), server.URL+"/blob", nil, dir, "named.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "named.bin"), path)
}

func TestDownloadOverwritesExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh")) //nolint:errcheck
	}))
	defer server.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0o644))

	client := New()
	path, err := client.Download(context.Background(), server.URL, nil, dir, "data.bin")
	require.NoError(t, err)
	assert.Equal(t, target, path)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestDownloadErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New()
	_, err := client.Download(context.Background(), server.URL, nil, t.TempDir(), "x.bin")
	require.Error(t, err)
	assert.Equal(t, KindClientError, KindOf(err))
}

func TestDownloadMissingDirectoryFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data")) //nolint:errcheck
	}))
	defer server.Close()

	client := New()
	// Directories are never created on the caller's behalf.
	_, err := client.Download(context.Background(), server.URL, nil, filepath.Join(t.TempDir(), "missing"), "x.bin")
	require.Error(t, err)
}

func TestDownloadForwardsToDownloader(t *testing.T) {
	dl := &downloaderDelegate{MockDelegate: NewMockDelegate()}
	client := New(WithDefaultDelegate(dl))

	path, err := client.Download(context.Background(), "https://x.test/file", nil, "/tmp", "f.bin")
	require.NoError(t, err)
	assert.Equal(t, "/delegated/f.bin", path)
	assert.True(t, dl.downloadCalled)
}

// downloaderDelegate is a mock that implements the Downloader extension.
type downloaderDelegate struct {
	*MockDelegate
	downloadCalled bool
}

func (d *downloaderDelegate) Download(_ context.Context, _ string, _ *Config, _, filename string) (string, error) {
	d.downloadCalled = true
	return "/delegated/" + filename, nil
}
