package httpclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Download streams a GET response to a file in outputDir and returns the
// written path.
//
// When the active delegate implements Downloader, the call is forwarded.
// Otherwise the client issues a streaming GET with
// "Accept: application/octet-stream", picks a filename from the
// Content-Disposition header (supporting both filename= and the
// RFC 5987 filename*= form) falling back to the filename argument, and
// pipes the body to disk. Existing files are overwritten; directories
// are never created.
func (c *Client) Download(ctx context.Context, rawURL string, cfg *Config, outputDir, filename string) (string, error) {
	eff := Resolve(Merge(c.cfg, cfg))
	eff.Method = MethodGet
	if eff.Accept == "" {
		eff.Accept = "application/octet-stream"
	}
	// Downloads ride the long-transfer agent unless the caller pinned
	// a transport.
	if cfg == nil || cfg.Transport == nil {
		eff.Transport = fixAgent(nil, true)
	}

	delegate := c.table.lookup(MethodGet, eff.ContentType)
	if dl, ok := delegate.(Downloader); ok {
		return dl.Download(ctx, rawURL, eff, outputDir, filename)
	}

	env, err := c.send(ctx, MethodGet, rawURL, eff, nil)
	if err != nil {
		return "", err
	}
	if !env.IsOK() {
		env.discardBody()
		if env.Err != nil {
			return "", env.Err
		}
		return "", newError(KindTransport, env.Status, rawURL, fmt.Errorf("unexpected download status"))
	}

	name := filenameFromDisposition(env.Header.Get("Content-Disposition"))
	if name == "" {
		name = filename
	}
	if name == "" {
		name = filenameFromURL(env.URL)
	}
	if name == "" {
		env.discardBody()
		return "", newError(KindConfig, 0, rawURL, fmt.Errorf("no filename for download"))
	}

	stream := env.Stream()
	if stream == nil {
		return "", newError(KindTransport, env.Status, rawURL, fmt.Errorf("download body already consumed"))
	}
	defer stream.Close()

	target := filepath.Join(outputDir, filepath.Base(name))
	f, err := os.Create(target)
	if err != nil {
		return "", newError(KindTransport, 0, rawURL, err)
	}

	_, copyErr := io.Copy(f, io.LimitReader(stream, eff.ContentLengthLimit()))
	closeErr := f.Close()
	if copyErr != nil {
		return "", newError(KindTransport, 0, rawURL, copyErr)
	}
	if closeErr != nil {
		return "", newError(KindTransport, 0, rawURL, closeErr)
	}

	c.logger.Debug().Str("url", rawURL).Str("path", target).Msg("download complete")
	return target, nil
}

// filenameFromDisposition extracts a filename from a Content-Disposition
// value. The RFC 5987 filename*= form wins over plain filename=; both
// quoting and percent-encoding are handled.
func filenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}

	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		// ParseMediaType already decodes the extended form and prefers
		// it when both are present.
		if name := params["filename"]; name != "" {
			return name
		}
	}

	// Fallback for values ParseMediaType rejects.
	for _, part := range strings.Split(disposition, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "filename*="); ok {
			return decodeExtendedFilename(v)
		}
		if v, ok := strings.CutPrefix(part, "filename="); ok {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}

// decodeExtendedFilename decodes the RFC 5987 charset'lang'value form.
func decodeExtendedFilename(v string) string {
	v = strings.Trim(v, `"`)
	if i := strings.LastIndex(v, "'"); i >= 0 {
		v = v[i+1:]
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

// filenameFromURL derives a last-resort filename from the URL path.
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
