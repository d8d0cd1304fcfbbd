// Package testutil provides shared helpers for handler tests.
//
// The monitor and journal packages expose plain http.Handler surfaces;
// these helpers keep their tests down to one line per request.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Do serves one request against the handler and returns the recorder.
func Do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// Get serves a GET request against the handler.
func Get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return Do(t, h, http.MethodGet, path)
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertBodyContains fails the test if the recorded body lacks the substring.
func AssertBodyContains(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	if !strings.Contains(rr.Body.String(), want) {
		t.Errorf("body does not contain %q:\n%s", want, rr.Body.String())
	}
}

// DecodeJSON unmarshals the recorded body into v.
func DecodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response body: %v\n%s", err, rr.Body.String())
	}
}
