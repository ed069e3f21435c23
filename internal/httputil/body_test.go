package httputil

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	if err != nil {
		t.Fatalf("ReadAllWithLimit: %v", err)
	}
	if !truncated {
		t.Error("expected truncated")
	}
	if string(data) != "abcd" {
		t.Errorf("data = %q, want abcd", data)
	}

	data, truncated, err = ReadAllWithLimit(strings.NewReader("abc"), 4)
	if err != nil || truncated || string(data) != "abc" {
		t.Errorf("got %q truncated=%v err=%v", data, truncated, err)
	}
}

func TestReadAllStrict_TooLarge(t *testing.T) {
	_, err := ReadAllStrict(strings.NewReader("abcdef"), 3)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestDecodeResponse_Success(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"status":"ok"}`)),
	}
	var out map[string]string
	if err := DecodeResponse(resp, &out); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %q", out["status"])
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadRequest,
		Body:       io.NopCloser(strings.NewReader(`bad input`)),
	}
	err := DecodeResponse(resp, nil)
	if err == nil || !strings.Contains(err.Error(), "bad input") {
		t.Fatalf("expected error with body, got %v", err)
	}
}

func TestDecodeJSONBody_UnknownField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"x","extra":1}`))
	var body struct {
		Name string `json:"name"`
	}
	if err := DecodeJSONBody(req, 1024, &body); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestWriteErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, "NOT_FOUND", "missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"NOT_FOUND"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
