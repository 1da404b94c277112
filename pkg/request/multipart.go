package request

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// FormPart is one field of a multipart/form-data body. Parts hold plain
// bytes so a Request carrying a form stays duplicable: Clone copies parts
// and each dispatch encodes a fresh body from them.
type FormPart struct {
	// Name is the form field name.
	Name string

	// Value is the field content.
	Value []byte

	// Filename is set for file parts and empty for text parts.
	Filename string
}

// AddFormText appends a text field to the multipart form.
func (r *Request) AddFormText(name, value string) *Request {
	r.form = append(r.form, FormPart{Name: name, Value: []byte(value)})
	return r
}

// AddFormFile reads the file at path into memory and appends it as a file
// field. This is the only descriptor operation that can fail.
func (r *Request) AddFormFile(name, path string) (*Request, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read form file: %w", err)
	}

	r.form = append(r.form, FormPart{
		Name:     name,
		Value:    content,
		Filename: filepath.Base(path),
	})
	return r, nil
}

// SetFormParts replaces the multipart form fields.
func (r *Request) SetFormParts(parts []FormPart) *Request {
	r.form = parts
	return r
}

// FormParts returns the multipart form fields, nil if none were added.
func (r *Request) FormParts() []FormPart {
	return r.form
}

// HasForm reports whether multipart form fields were added.
func (r *Request) HasForm() bool {
	return len(r.form) > 0
}

// EncodeForm encodes the form parts into a multipart/form-data body and
// returns it together with the matching Content-Type value. The executor
// passes both through to the HTTP client without interpreting them.
func (r *Request) EncodeForm() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, part := range r.form {
		var (
			fw  io.Writer
			err error
		)
		if part.Filename != "" {
			fw, err = w.CreateFormFile(part.Name, part.Filename)
		} else {
			fw, err = w.CreateFormField(part.Name)
		}
		if err != nil {
			return nil, "", fmt.Errorf("create form part %q: %w", part.Name, err)
		}
		if _, err := fw.Write(part.Value); err != nil {
			return nil, "", fmt.Errorf("write form part %q: %w", part.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form writer: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
