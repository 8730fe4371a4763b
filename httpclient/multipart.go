package httpclient

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// FileUpload is one file part of a multipart upload.
type FileUpload struct {
	// FieldName is the form field name for the file.
	FieldName string

	// FileName is the name the file carries in the upload.
	FileName string

	// Reader provides the file content. Leave nil and set Path to read
	// from disk at send time.
	Reader io.Reader

	// Path reads the file from disk when Reader is nil.
	Path string
}

// MultipartBody is the multipart payload accepted by Upload: plain form
// fields plus file parts.
type MultipartBody struct {
	Fields map[string]string
	Files  []FileUpload
}

// File appends a file part read from disk.
func (b *MultipartBody) File(fieldName, path string) *MultipartBody {
	b.Files = append(b.Files, FileUpload{
		FieldName: fieldName,
		FileName:  filepath.Base(path),
		Path:      path,
	})
	return b
}

// FileReader appends a file part backed by a reader.
func (b *MultipartBody) FileReader(fieldName, fileName string, r io.Reader) *MultipartBody {
	b.Files = append(b.Files, FileUpload{
		FieldName: fieldName,
		FileName:  fileName,
		Reader:    r,
	})
	return b
}

// Field sets a plain form field.
func (b *MultipartBody) Field(key, value string) *MultipartBody {
	if b.Fields == nil {
		b.Fields = make(map[string]string)
	}
	b.Fields[key] = value
	return b
}

// encode renders the multipart body and returns it with its content type.
func (b *MultipartBody) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	for key, value := range b.Fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	for _, file := range b.Files {
		reader := file.Reader
		if reader == nil {
			f, err := os.Open(file.Path)
			if err != nil {
				return nil, "", err
			}
			defer f.Close()
			reader = f
		}

		part, err := writer.CreateFormFile(file.FieldName, file.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, reader); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}

// Upload sends a payload to the URL. When the active delegate implements
// Uploader the call is forwarded; a *MultipartBody is rendered as
// multipart/form-data; anything else goes through the ordinary POST body
// resolution.
func (c *Client) Upload(ctx context.Context, rawURL string, cfg *Config, body any) (*Envelope, error) {
	eff := Resolve(Merge(c.cfg, cfg))
	eff.Method = MethodPost

	delegate := c.table.lookup(MethodPost, eff.ContentType)
	if up, ok := delegate.(Uploader); ok {
		return up.Upload(ctx, rawURL, eff, body)
	}

	if mp, ok := body.(*MultipartBody); ok {
		buf, contentType, err := mp.encode()
		if err != nil {
			return nil, newError(KindConfig, 0, rawURL, err)
		}
		eff.ContentType = contentType
		return c.send(ctx, MethodPost, rawURL, eff, buf.Bytes())
	}

	return c.send(ctx, MethodPost, rawURL, eff, body)
}
