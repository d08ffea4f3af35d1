// Package imaging converts uploaded files into the data URIs stored on posts
// and sent to the analyzer.
package imaging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"forgery-sim/internal/core/domain"
	"io"
	"net/http"
	"os"
	"strings"
)

// MaxImageSize caps uploads and fetched images.
const MaxImageSize = 20 << 20

var (
	ErrNotImage       = errors.New("content is not an image")
	ErrInvalidDataURI = errors.New("invalid data URI")
	ErrTooLarge       = errors.New("image exceeds size limit")
)

// Load reads an image file from disk.
func Load(path string) (domain.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Image{}, err
	}
	defer f.Close()

	data, err := readLimited(f)
	if err != nil {
		return domain.Image{}, fmt.Errorf("read %s: %w", path, err)
	}
	return FromBytes(data, "")
}

// FromBytes builds an Image, sniffing the MIME type when mimeHint is empty
// or generic.
func FromBytes(data []byte, mimeHint string) (domain.Image, error) {
	mime := strings.ToLower(strings.TrimSpace(mimeHint))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = mime[:i]
		}
	}
	if !strings.HasPrefix(mime, "image/") {
		return domain.Image{}, fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	if len(data) == 0 {
		return domain.Image{}, fmt.Errorf("%w: empty payload", ErrNotImage)
	}
	return domain.Image{MIMEType: mime, Data: data}, nil
}

// DataURI encodes img as data:<mime>;base64,<payload>.
func DataURI(img domain.Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// ParseDataURI decodes a base64 data URI produced by DataURI.
func ParseDataURI(uri string) (domain.Image, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return domain.Image{}, ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return domain.Image{}, ErrInvalidDataURI
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return domain.Image{}, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidDataURI, enc)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return FromBytes(data, mime)
}

// IsDataURI reports whether ref is an inline data URI.
func IsDataURI(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}

// Fetch downloads an image over HTTP.
func Fetch(ctx context.Context, client *http.Client, url string) (domain.Image, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Image{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return domain.Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Image{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := readLimited(resp.Body)
	if err != nil {
		return domain.Image{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	return FromBytes(data, resp.Header.Get("Content-Type"))
}

// Resolve turns a stored image reference into bytes.
func Resolve(ctx context.Context, client *http.Client, ref string) (domain.Image, error) {
	if IsDataURI(ref) {
		return ParseDataURI(ref)
	}
	return Fetch(ctx, client, ref)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
