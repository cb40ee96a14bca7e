package pipeline

import (
	"io"
	"net/http"
	"time"
)

// Environment is the narrow view of the HTTP exchange that components and
// the evaluator need.
//
// Contract:
//   - Concurrency: used by one request at a time; not safe for concurrent use.
//   - Headers: response headers set after the first write to Writer are lost.
type Environment interface {
	// Method returns the request method.
	Method() string

	// RequestURI returns the request path, used to identify a request
	// across invocations.
	RequestURI() string

	// Header returns a request header.
	Header(name string) string

	// DateHeader parses a request header as an HTTP date.
	DateHeader(name string) (time.Time, bool)

	// Parameter returns a query parameter.
	Parameter(name string) string

	// SetHeader sets a response header. An empty value removes it.
	SetHeader(name, value string)

	// SetDateHeader sets a response header to an HTTP date.
	SetDateHeader(name string, t time.Time)

	// SetStatus records the response status. It takes effect on the first
	// write or on Commit.
	SetStatus(code int)

	// Writer returns the response body writer.
	Writer() io.Writer
}

// HTTPEnvironment adapts net/http to Environment.
type HTTPEnvironment struct {
	w         http.ResponseWriter
	r         *http.Request
	status    int
	committed bool
}

// NewHTTPEnvironment wraps one request/response pair.
func NewHTTPEnvironment(w http.ResponseWriter, r *http.Request) *HTTPEnvironment {
	return &HTTPEnvironment{w: w, r: r, status: http.StatusOK}
}

// Request returns the wrapped request.
func (e *HTTPEnvironment) Request() *http.Request { return e.r }

func (e *HTTPEnvironment) Method() string            { return e.r.Method }
func (e *HTTPEnvironment) RequestURI() string        { return e.r.URL.Path }
func (e *HTTPEnvironment) Header(name string) string { return e.r.Header.Get(name) }

func (e *HTTPEnvironment) DateHeader(name string) (time.Time, bool) {
	v := e.r.Header.Get(name)
	if v == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (e *HTTPEnvironment) Parameter(name string) string {
	return e.r.URL.Query().Get(name)
}

func (e *HTTPEnvironment) SetHeader(name, value string) {
	if value == "" {
		e.w.Header().Del(name)
		return
	}
	e.w.Header().Set(name, value)
}

func (e *HTTPEnvironment) SetDateHeader(name string, t time.Time) {
	e.w.Header().Set(name, t.UTC().Format(http.TimeFormat))
}

func (e *HTTPEnvironment) SetStatus(code int) { e.status = code }

// Status returns the recorded response status.
func (e *HTTPEnvironment) Status() int { return e.status }

func (e *HTTPEnvironment) Writer() io.Writer { return envWriter{e} }

// Commit writes the status line and headers if nothing was written yet.
func (e *HTTPEnvironment) Commit() {
	if e.committed {
		return
	}
	e.committed = true
	e.w.WriteHeader(e.status)
}

// Committed reports whether the status line has been written.
func (e *HTTPEnvironment) Committed() bool { return e.committed }

type envWriter struct{ e *HTTPEnvironment }

func (w envWriter) Write(p []byte) (int, error) {
	w.e.Commit()
	return w.e.w.Write(p)
}
