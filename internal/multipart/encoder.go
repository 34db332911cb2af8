// Package multipart builds multipart/form-data request bodies.
//
// Fields are written in insertion order and file payloads are streamed as raw
// bytes, so binary attachments such as mapping files arrive bit-for-bit.
package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrDuplicateField = errors.New("duplicate multipart field")

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

type part struct {
	name        string
	filename    string
	contentType string
	body        io.Reader
}

// Encoder accumulates fields and renders them as one multipart body.
// The body returned by Reader can be consumed once.
type Encoder struct {
	boundary string
	parts    []part
	names    map[string]struct{}
	closers  []io.Closer
}

// New returns an Encoder using boundary, or a random 128-bit hex token when
// boundary is empty.
func New(boundary string) *Encoder {
	if boundary == "" {
		boundary = NewBoundary()
	}
	return &Encoder{
		boundary: boundary,
		names:    make(map[string]struct{}),
	}
}

// NewBoundary returns a random 32-character hex token.
func NewBoundary() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

// ContentType returns the value for the request Content-Type header.
func (e *Encoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.boundary
}

// AddField adds an inline text field.
func (e *Encoder) AddField(name, value string) error {
	return e.add(part{name: name, body: strings.NewReader(value)})
}

// AddBytes adds an inline binary field without a filename.
func (e *Encoder) AddBytes(name string, value []byte) error {
	return e.add(part{name: name, body: bytes.NewReader(value)})
}

// AddFile adds a file part read from r. The caller keeps ownership of r.
func (e *Encoder) AddFile(name, filename, contentType string, r io.Reader) error {
	return e.add(part{name: name, filename: filename, contentType: contentType, body: r})
}

// AddFilePath opens path and adds it as a file part named after its base
// name. The handle is released by Close.
func (e *Encoder) AddFilePath(name, path, contentType string) error {
	if _, dup := e.names[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateField, name)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open attachment %s: %w", path, err)
	}
	e.closers = append(e.closers, f)

	return e.add(part{name: name, filename: filepath.Base(path), contentType: contentType, body: f})
}

// AddFilePaths adds each path as a file part under one shared name, the way a
// form sends a list of files. The name itself must not be in use yet. Handles
// are released by Close.
func (e *Encoder) AddFilePaths(name string, paths []string, contentType string) error {
	if name == "" {
		return fmt.Errorf("multipart field name cannot be empty")
	}
	if _, dup := e.names[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateField, name)
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open attachment %s: %w", path, err)
		}
		e.closers = append(e.closers, f)
		e.parts = append(e.parts, part{name: name, filename: filepath.Base(path), contentType: contentType, body: f})
	}
	e.names[name] = struct{}{}
	return nil
}

func (e *Encoder) add(p part) error {
	if p.name == "" {
		return fmt.Errorf("multipart field name cannot be empty")
	}
	if _, dup := e.names[p.name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateField, p.name)
	}
	e.names[p.name] = struct{}{}
	e.parts = append(e.parts, p)
	return nil
}

// Reader streams the encoded body.
func (e *Encoder) Reader() io.Reader {
	readers := make([]io.Reader, 0, len(e.parts)*3+1)
	for _, p := range e.parts {
		readers = append(readers, strings.NewReader(e.header(p)), p.body, strings.NewReader("\r\n"))
	}
	readers = append(readers, strings.NewReader("--"+e.boundary+"--\r\n"))
	return io.MultiReader(readers...)
}

// Bytes renders the whole body into memory.
func (e *Encoder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, e.Reader()); err != nil {
		return nil, fmt.Errorf("encode multipart body: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) header(p part) string {
	var b strings.Builder
	b.WriteString("--" + e.boundary + "\r\n")
	if p.filename != "" {
		fmt.Fprintf(&b, "Content-Disposition: form-data; name=\"%s\"; filename=\"%s\"\r\n",
			quoteEscaper.Replace(p.name), quoteEscaper.Replace(p.filename))
	} else {
		fmt.Fprintf(&b, "Content-Disposition: form-data; name=\"%s\"\r\n", quoteEscaper.Replace(p.name))
	}
	if p.contentType != "" {
		b.WriteString("Content-Type: " + p.contentType + "\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}

// Close releases every file opened by AddFilePath. It is safe to call more
// than once.
func (e *Encoder) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
