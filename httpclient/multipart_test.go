package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultipartBodyEncode(t *testing.T) {
	body := (&MultipartBody{}).
		Field("title", "Q4 Report").
		FileReader("document", "report.csv", strings.NewReader("a,b\n"))

	buf, contentType, err := body.encode()
	require.NoError(t, err)
	assert.Contains(t, contentType, "multipart/form-data; boundary=")
	assert.Contains(t, buf.String(), `name="title"`)
	assert.Contains(t, buf.String(), "Q4 Report")
	assert.Contains(t, buf.String(), `filename="report.csv"`)
	assert.Contains(t, buf.String(), "a,b")
}

func TestUploadMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "reports", r.FormValue("category"))

		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "data.txt", header.Filename)

		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "hello upload", string(content))

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New()
	body := (&MultipartBody{}).
		Field("category", "reports").
		FileReader("document", "data.txt", strings.NewReader("hello upload"))

	env, err := client.Upload(context.Background(), server.URL+"/upload", nil, body)
	require.NoError(t, err)
	assert.True(t, env.IsOK())
}

func TestUploadPlainBodyFallsBackToPost(t *testing.T) {
	mock := NewMockDelegate()
	client := New(WithDefaultDelegate(mock))

	_, err := client.Upload(context.Background(), "https://x.test/upload", nil, map[string]string{"k": "v"})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, MethodPost, calls[0].Method)
}

func TestUploadForwardsToUploader(t *testing.T) {
	up := &uploaderDelegate{MockDelegate: NewMockDelegate()}
	client := New(WithDefaultDelegate(up))

	env, err := client.Upload(context.Background(), "https://x.test/upload", nil, "payload")
	require.NoError(t, err)
	assert.Equal(t, 202, env.Status)
	assert.True(t, up.uploadCalled)
}

// uploaderDelegate is a mock that implements the Uploader extension.
type uploaderDelegate struct {
	*MockDelegate
	uploadCalled bool
}

func (d *uploaderDelegate) Upload(_ context.Context, _ string, _ *Config, _ any) (*Envelope, error) {
	d.uploadCalled = true
	return EnvelopeFromBytes(202, nil, nil, nil), nil
}

func TestCoalesceKey(t *testing.T) {
	// Query parameter order never changes the key.
	a := coalesceKey("GET", "https://x.test/api/things?b=2&a=1", nil)
	b := coalesceKey("GET", "https://x.test/api/things?a=1&b=2", nil)
	assert.Equal(t, a, b)

	// Method, path and body all distinguish keys.
	assert.NotEqual(t, a, coalesceKey("POST", "https://x.test/api/things?a=1&b=2", nil))
	assert.NotEqual(t, a, coalesceKey("GET", "https://x.test/api/other?a=1&b=2", nil))
	assert.NotEqual(t, a, coalesceKey("GET", "https://x.test/api/things?a=1&b=2", []byte("body")))
}
