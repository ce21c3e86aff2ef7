package remote

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewError_EngineFormat(t *testing.T) {
	e := NewError(404, []byte(`{"message":"Index `+"`books`"+` not found.","code":"index_not_found","type":"invalid_request","link":"https://docs"}`))

	if e.Status != 404 || e.Code != "index_not_found" {
		t.Fatalf("unexpected error: %+v", e)
	}
	if !IsNotFound(fmt.Errorf("get index: %w", e)) {
		t.Fatal("expected wrapped 404 to be detected")
	}
}

func TestNewError_PlainBody(t *testing.T) {
	e := NewError(502, []byte("bad gateway"))
	if e.Message != "bad gateway" {
		t.Fatalf("message = %q", e.Message)
	}
	if IsNotFound(e) {
		t.Fatal("502 must not be treated as not found")
	}
}

func TestIsNotFound_OtherErrors(t *testing.T) {
	if IsNotFound(errors.New("boom")) {
		t.Fatal("plain error must not be treated as not found")
	}
	if IsNotFound(nil) {
		t.Fatal("nil must not be treated as not found")
	}
}

func TestNewJSON(t *testing.T) {
	req, err := NewJSON(http.MethodPost, "/indexes", map[string]string{"uid": "books"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ContentType != ContentTypeJSON || string(req.Body) != `{"uid":"books"}` {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestWithQuery_DoesNotShareValues(t *testing.T) {
	base := Get("/indexes").WithQuery("limit", "10")
	other := base.WithQuery("offset", "5")

	if base.Query.Has("offset") {
		t.Fatal("WithQuery mutated the original request")
	}
	if other.Query.Get("limit") != "10" {
		t.Fatal("WithQuery dropped existing parameters")
	}
}

func TestResponse_Task(t *testing.T) {
	ref, err := Response{Status: 202, Body: []byte(`{"taskUid":3,"indexUid":"movies","status":"enqueued","type":"documentAdditionOrUpdate"}`)}.Task()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.TaskUID != 3 || ref.IndexUID != "movies" || ref.Status != "enqueued" {
		t.Errorf("unexpected ref: %+v", ref)
	}

	if _, err := (Response{Status: 202}).Task(); err == nil {
		t.Error("expected error for empty body")
	}
}
