package request

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const defaultPartContentType = "application/octet-stream"

// Part is one named section of a multipart/form-data body:
// a plain text field or a file attachment.
type Part struct {
	name        string
	value       string
	fileName    string
	contentType string
	content     io.Reader
	path        string
	isFile      bool
}

// TextPart creates a plain field part with a text value.
func TextPart(name, value string) Part {
	return Part{name: name, value: value}
}

// FilePart creates a file attachment part,
// the content is read fully during encoding.
func FilePart(name, fileName, contentType string, content io.Reader) Part {
	if contentType == "" {
		contentType = defaultPartContentType
	}
	return Part{name: name, fileName: fileName, contentType: contentType, content: content, isFile: true}
}

// FilePartFromFile creates a file attachment part from a file on disk.
// The content type is guessed from the file extension and the file
// is opened and read during encoding.
func FilePartFromFile(name, path string) Part {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = defaultPartContentType
	}
	return Part{name: name, fileName: filepath.Base(path), contentType: contentType, path: path, isFile: true}
}

// Name returns the part field name.
func (p Part) Name() string {
	return p.name
}

// MultipartContentType returns the "multipart/form-data" Content-Type value
// declaring the boundary token.
func MultipartContentType(boundary string) string {
	if strings.ContainsAny(boundary, `()<>@,;:\"/[]?= `) {
		boundary = `"` + boundary + `"`
	}
	return "multipart/form-data; boundary=" + boundary
}

// EncodeMultipart builds a multipart/form-data body from the ordered parts.
// Encoding is a pure function of the part sequence, no network I/O happens.
// Each part is emitted as a boundary delimiter, a Content-Disposition header,
// for file attachments a filename and a Content-Type, a blank line and the
// raw content; the closing boundary delimiter follows the last part.
func EncodeMultipart(boundary string, parts []Part) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.SetBoundary(boundary); err != nil {
		return nil, &EncodingError{What: "multipart body", Err: err}
	}
	for _, part := range parts {
		if err := part.encode(writer); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, &EncodingError{What: "multipart body", Err: err}
	}
	return buf.Bytes(), nil
}

// newBoundary generates a random boundary token unlikely to collide with part content.
func newBoundary() string {
	return "gohttp-" + uuid.NewString()
}

func (p Part) encode(writer *multipart.Writer) error {
	if strings.TrimSpace(p.name) == "" {
		return &ArgumentError{Param: "part name"}
	}

	// Plain field
	if !p.isFile {
		if err := writer.WriteField(p.name, p.value); err != nil {
			return &EncodingError{What: fmt.Sprintf(`part "%s"`, p.name), Err: err}
		}
		return nil
	}

	// File attachment
	content := p.content
	if p.path != "" {
		file, err := os.Open(p.path)
		if err != nil {
			return &EncodingError{What: fmt.Sprintf(`part "%s"`, p.name), Err: err}
		}
		defer func() {
			_ = file.Close()
		}()
		content = file
	}
	if content == nil {
		return &ArgumentError{Param: "part content"}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(p.name), escapeQuotes(p.fileName)))
	header.Set("Content-Type", p.contentType)
	out, err := writer.CreatePart(header)
	if err != nil {
		return &EncodingError{What: fmt.Sprintf(`part "%s"`, p.name), Err: err}
	}
	if _, err := io.Copy(out, content); err != nil {
		return &EncodingError{What: fmt.Sprintf(`part "%s"`, p.name), Err: err}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
