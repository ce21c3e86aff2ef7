package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kailas-cloud/meilifed/internal/domain/task"
)

// Content types understood by the remote engine.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
)

// Request is one call against the remote engine, relative to its base URL.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	ContentType string
	Body        []byte
}

// NewJSON creates a request with a JSON-encoded body. A nil body sends no payload.
func NewJSON(method, path string, body any) (Request, error) {
	req := Request{Method: method, Path: path}
	if body == nil {
		return req, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s %s body: %w", method, path, err)
	}
	req.ContentType = ContentTypeJSON
	req.Body = data
	return req, nil
}

// Get creates a body-less GET request.
func Get(path string) Request { return Request{Method: http.MethodGet, Path: path} }

// Delete creates a body-less DELETE request.
func Delete(path string) Request { return Request{Method: http.MethodDelete, Path: path} }

// WithQuery returns a copy of the request with one query parameter set.
func (r Request) WithQuery(key, value string) Request {
	q := url.Values{}
	for k, v := range r.Query {
		q[k] = append([]string(nil), v...)
	}
	q.Set(key, value)
	r.Query = q
	return r
}

// Response is the decoded-on-demand reply of the remote engine.
type Response struct {
	Status int
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}
	if err := UnmarshalJSON(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// UnmarshalJSON decodes data into v keeping untyped numbers as json.Number,
// so integer ids beyond float64 precision survive a round trip.
func UnmarshalJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after top-level value")
	}
	return nil
}

// Task decodes the enqueued-task summary returned by write endpoints.
func (r Response) Task() (task.Ref, error) {
	var ref task.Ref
	if err := r.Decode(&ref); err != nil {
		return task.Ref{}, err
	}
	return ref, nil
}

// Error is a non-2xx reply of the remote engine.
type Error struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Link    string `json:"link"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote error %d", e.Status)
}

// NewError builds an Error from a status code and a raw error body.
// Bodies that are not in the engine's error format are kept as the message.
func NewError(status int, body []byte) *Error {
	e := &Error{Status: status}
	if len(body) > 0 && json.Unmarshal(body, e) != nil {
		e.Message = string(body)
	}
	e.Status = status
	return e
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}
