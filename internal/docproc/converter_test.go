package docproc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPConverterConvert(t *testing.T) {
	var gotPath, gotFilename, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		files := r.MultipartForm.File["files"]
		if len(files) != 1 {
			t.Fatalf("expected one file part, got %d", len(files))
		}
		gotFilename = files[0].Filename
		file, err := files[0].Open()
		if err != nil {
			t.Fatalf("failed to open file part: %v", err)
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		gotBody = string(raw)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"document": map[string]any{"md_content": "# Hello\n\nWorld."},
		})
	}))
	defer server.Close()

	converter := NewHTTPConverter(server.URL, time.Second)
	markdown, err := converter.Convert(context.Background(), "report.pdf", []byte("%PDF raw"))
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if markdown != "# Hello\n\nWorld." {
		t.Fatalf("unexpected markdown: %q", markdown)
	}
	if gotPath != "/v1/convert/file" {
		t.Fatalf("expected the convert endpoint, got %q", gotPath)
	}
	if gotFilename != "report.pdf" || gotBody != "%PDF raw" {
		t.Fatalf("unexpected upload: %q %q", gotFilename, gotBody)
	}
}

func TestHTTPConverterSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversion backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	converter := NewHTTPConverter(server.URL, time.Second)
	_, err := converter.Convert(context.Background(), "report.pdf", []byte("%PDF"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("expected the status in the error, got %v", err)
	}
}

func TestHTTPConverterRejectsMalformedResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	converter := NewHTTPConverter(server.URL, time.Second)
	if _, err := converter.Convert(context.Background(), "report.pdf", []byte("%PDF")); err == nil {
		t.Fatal("expected a decode error")
	}
}
