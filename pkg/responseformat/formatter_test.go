package responseformat

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestEncodeDecode(t *testing.T) {
	for _, f := range []Format{JSON, MsgPack} {
		t.Run(string(f), func(t *testing.T) {
			b, err := Encode(f, payload{Name: "pm25", Value: 35.5})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			var m map[string]any
			if err := Decode(f, b, &m); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if m["name"] != "pm25" {
				t.Errorf("field names not taken from json tags: %v", m)
			}
		})
	}
}

func TestWriteResponse(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
	}{
		{"/api/catalog", "application/json"},
		{"/api/catalog?format=json", "application/json"},
		{"/api/catalog?format=msgpack", "application/x-msgpack"},
	}
	f := NewFormatter()
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tt.url, nil)
		if err := f.WriteResponse(rec, req, http.StatusOK, payload{Name: "x"}, map[string]string{"Cache-Control": "no-store"}); err != nil {
			t.Fatalf("%s: %v", tt.url, err)
		}
		if got := rec.Header().Get("Content-Type"); got != tt.contentType {
			t.Errorf("%s: content type %q, want %q", tt.url, got, tt.contentType)
		}
		if rec.Header().Get("Cache-Control") != "no-store" || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("%s: headers %v", tt.url, rec.Header())
		}
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/x", nil)
	NewFormatter().WriteError(rec, req, http.StatusNotFound, errors.New("session not found"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d", rec.Code)
	}
	if body := rec.Body.String(); body != `{"error":"session not found"}` {
		t.Errorf("body %q", body)
	}
}
