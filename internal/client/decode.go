package client

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// decodeBody unwraps the Content-Encoding the service chose. Setting
// Accept-Encoding by hand turns off net/http's transparent gzip handling.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "", "identity":
		return resp.Body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, nil
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, nil
	case "br":
		return &decodedBody{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
