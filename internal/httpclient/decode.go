package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// AcceptEncoding is what SetHeaders advertises; DecodeBody undoes each.
const AcceptEncoding = "gzip, br, deflate"

// MaxBodyBytes bounds a decoded response body.
const MaxBodyBytes = 64 << 20

// SetHeaders applies the headers every outbound request carries.
func SetHeaders(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept-Encoding", AcceptEncoding)
}

// DecodeBody reads resp.Body, undoing Content-Encoding. It does not close
// the body.
func DecodeBody(resp *http.Response) ([]byte, error) {
	r, err := decodingReader(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	body, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("read body: larger than %d bytes", MaxBodyBytes)
	}
	return body, nil
}

func decodingReader(encoding string, body io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(body), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "deflate":
		zr, err := zlib.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("deflate body: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", encoding)
	}
}
