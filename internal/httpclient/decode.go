package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"
)

// redactedParams are query parameters masked in logged URLs. sig covers
// blob SAS URLs.
var redactedParams = []string{
	"sig", "token", "access_token", "client_secret",
	"api_key", "apikey", "key", "password", "secret",
}

// decodeBody wraps resp.Body in a decompressor for its Content-Encoding.
// Unknown or broken encodings return the raw body.
func (c *Client) decodeBody(resp *http.Response) io.ReadCloser {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	var r io.Reader
	switch enc {
	case "":
		return resp.Body
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.logger.Warn("invalid gzip response, returning raw body", slog.String("error", err.Error()))
			return resp.Body
		}
		r = gz
	case "deflate":
		r = flate.NewReader(resp.Body)
	case "br":
		r = brotli.NewReader(resp.Body)
	default:
		c.logger.Debug("unknown content encoding, returning raw body", slog.String("encoding", enc))
		return resp.Body
	}
	resp.Header.Del("Content-Encoding")
	resp.ContentLength = -1
	return &decodedBody{Reader: r, raw: resp.Body}
}

type decodedBody struct {
	io.Reader
	raw io.Closer
}

func (d *decodedBody) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return d.raw.Close()
}

// redactURL renders u for logs with credential parameters masked.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	q := clean.Query()
	for _, p := range redactedParams {
		if q.Has(p) {
			q.Set(p, "***")
		}
	}
	clean.RawQuery = q.Encode()
	clean.User = nil
	return clean.String()
}
