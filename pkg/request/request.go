// Package request defines the descriptor for a single outbound HTTP call
// and the outcome recorded on it after execution.
package request

import (
	"net/http"
)

// Request describes one HTTP call. It is an inert value: setters mutate and
// return the receiver for fluent construction, getters are plain reads.
// The executor never mutates a caller-held Request; it dispatches a Clone.
type Request struct {
	url     string
	method  string
	body    string
	headers map[string]string
	options map[string]string
	tag     string

	// Outcome fields, populated on the dispatched copy after execution.
	responseText  string
	responseInfo  string
	responseError string
	responseErrno int

	form []FormPart
}

// New creates a Request for the given URL and HTTP method.
// Method values are the net/http constants (http.MethodGet etc.).
func New(url, method string) *Request {
	return &Request{
		url:     url,
		method:  method,
		options: make(map[string]string),
	}
}

// Clone returns an independent copy of the request. Maps and form parts are
// deep-copied so the executor can record outcomes on the copy while the
// caller keeps the original.
func (r *Request) Clone() *Request {
	c := *r

	if r.headers != nil {
		c.headers = make(map[string]string, len(r.headers))
		for k, v := range r.headers {
			c.headers[k] = v
		}
	}

	c.options = make(map[string]string, len(r.options))
	for k, v := range r.options {
		c.options[k] = v
	}

	if r.form != nil {
		c.form = make([]FormPart, len(r.form))
		copy(c.form, r.form)
	}

	return &c
}

// SetURL sets the target URL.
func (r *Request) SetURL(url string) *Request {
	r.url = url
	return r
}

// URL returns the target URL.
func (r *Request) URL() string {
	return r.url
}

// SetMethod sets the HTTP method.
func (r *Request) SetMethod(method string) *Request {
	r.method = method
	return r
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	return r.method
}

// SetPostData sets the request body. An empty string clears it.
func (r *Request) SetPostData(data string) *Request {
	r.body = data
	return r
}

// PostData returns the request body.
func (r *Request) PostData() string {
	return r.body
}

// HasPostData reports whether a body is set.
func (r *Request) HasPostData() bool {
	return r.body != ""
}

// SetHeaders replaces the request headers. Keys are stored as given; the
// HTTP layer treats them case-insensitively at dispatch.
func (r *Request) SetHeaders(headers map[string]string) *Request {
	r.headers = headers
	return r
}

// Headers returns the request headers, nil if none were set.
func (r *Request) Headers() map[string]string {
	return r.headers
}

// SetOptions replaces the free-form options. Options are caller metadata and
// are never interpreted by the executor.
func (r *Request) SetOptions(options map[string]string) *Request {
	r.options = make(map[string]string, len(options))
	for k, v := range options {
		r.options[k] = v
	}
	return r
}

// AddOptions merges the given options into the existing set.
func (r *Request) AddOptions(options map[string]string) *Request {
	for k, v := range options {
		r.options[k] = v
	}
	return r
}

// Options returns the free-form options.
func (r *Request) Options() map[string]string {
	return r.options
}

// SetTag sets an opaque correlation identifier carried through to the result.
func (r *Request) SetTag(tag string) *Request {
	r.tag = tag
	return r
}

// Tag returns the correlation identifier.
func (r *Request) Tag() string {
	return r.tag
}

// SetResponseText records the response body text.
func (r *Request) SetResponseText(text string) *Request {
	r.responseText = text
	return r
}

// ResponseText returns the recorded response body text.
func (r *Request) ResponseText() string {
	return r.responseText
}

// SetResponseInfo records additional response information (status line).
func (r *Request) SetResponseInfo(info string) *Request {
	r.responseInfo = info
	return r
}

// ResponseInfo returns the recorded response information.
func (r *Request) ResponseInfo() string {
	return r.responseInfo
}

// SetResponseError records an error message from execution.
func (r *Request) SetResponseError(msg string) *Request {
	r.responseError = msg
	return r
}

// ResponseError returns the recorded error message.
func (r *Request) ResponseError() string {
	return r.responseError
}

// SetResponseErrno records a numeric error code from execution.
func (r *Request) SetResponseErrno(errno int) *Request {
	r.responseErrno = errno
	return r
}

// ResponseErrno returns the recorded numeric error code.
func (r *Request) ResponseErrno() int {
	return r.responseErrno
}

// IsBodyMethod reports whether the method conventionally carries a body.
func (r *Request) IsBodyMethod() bool {
	switch r.method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
