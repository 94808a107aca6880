package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestCountriesContinuesPastFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/name/norway":
			w.Write([]byte(`[{"name":{"common":"Norway"}}]`))
		case "/name/atlantis":
			http.NotFound(w, r)
		case "/name/france":
			w.Write([]byte(`[{"name":{"common":"France"}}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewClient(srv.URL)

	written, err := c.Countries(context.Background(), []string{"norway", "atlantis", "france"}, dir)
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("wrote %d files, want 2", len(written))
	}

	data, err := os.ReadFile(filepath.Join(dir, "norway.json"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != `[{"name":{"common":"Norway"}}]` {
		t.Errorf("unexpected content: %s", data)
	}
}

func TestCountriesAllFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Countries(context.Background(), []string{"nowhere"}, t.TempDir())
	if err == nil {
		t.Fatal("want error when every fetch fails")
	}
}

func TestCountriesEmptyList(t *testing.T) {
	c := NewClient("")
	if _, err := c.Countries(context.Background(), nil, t.TempDir()); err == nil {
		t.Fatal("want error for empty country list")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Norway", "norway.json"},
		{" United States ", "united_states.json"},
		{"new zealand", "new_zealand.json"},
	}
	for _, tc := range tests {
		if got := fileName(tc.in); got != tc.want {
			t.Errorf("fileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
