package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestNopPassThrough(t *testing.T) {
	got, err := Nop{}.Translate(context.Background(), "こんにちは", "ja_XX")
	if err != nil {
		t.Fatal(err)
	}
	if got != "こんにちは" {
		t.Fatalf("got %q", got)
	}
}

func TestHTTPTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if req.SrcLang != "ja_XX" {
			t.Errorf("src_lang = %q", req.SrcLang)
		}
		_ = json.NewEncoder(w).Encode(translateResponse{Text: "hello"})
	}))
	defer srv.Close()

	tr := NewHTTP(srv.URL, nil, zerolog.Nop())
	got, err := tr.Translate(context.Background(), "こんにちは", "ja_XX")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestHTTPTranslateSidecarError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(translateResponse{Error: "model not loaded"})
	}))
	defer srv.Close()

	tr := NewHTTP(srv.URL, nil, zerolog.Nop())
	if _, err := tr.Translate(context.Background(), "x", "ja_XX"); err == nil {
		t.Fatal("sidecar error must propagate")
	}
}
