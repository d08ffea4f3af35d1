package imaging

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

// Minimal PNG signature is enough for content sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestFromBytes(t *testing.T) {
	img, err := FromBytes(pngBytes, "")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	img, err = FromBytes(pngBytes, "image/jpeg; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	_, err = FromBytes([]byte("hello world"), "")
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = FromBytes(nil, "image/png")
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestDataURIRoundTrip(t *testing.T) {
	img, err := FromBytes(pngBytes, "")
	require.NoError(t, err)

	uri := DataURI(img)
	assert.True(t, IsDataURI(uri))
	assert.Contains(t, uri, "data:image/png;base64,")

	back, err := ParseDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, img, back)
}

func TestParseDataURI_Invalid(t *testing.T) {
	for _, uri := range []string{
		"https://example.com/a.png",
		"data:image/png;base64",
		"data:image/png,rawdata",
		"data:image/png;base64,!!!",
	} {
		_, err := ParseDataURI(uri)
		assert.ErrorIs(t, err, ErrInvalidDataURI, uri)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o644))

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	img, err := Resolve(context.Background(), srv.Client(), srv.URL+"/nature.png")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Data)

	_, err = Resolve(context.Background(), srv.Client(), srv.URL+"/missing")
	assert.Error(t, err)

	inline, err := Resolve(context.Background(), nil, DataURI(img))
	require.NoError(t, err)
	assert.Equal(t, img, inline)
}
