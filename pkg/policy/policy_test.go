package policy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/fetch"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, nil
}

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	cfg := &config.Config{WorkDir: t.TempDir(), S3Region: "us-east-1"}
	return NewClassifier(fetch.NewFetcher(cfg, noopRunner{}))
}

func TestIsSourceAPathPrecedence(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		// Index pages win even when a length is present.
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", "1024")
	})
	mux.HandleFunc("/disk.raw", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", "4096")
	})
	mux.HandleFunc("/dir", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dir/", http.StatusFound)
	})
	mux.HandleFunc("/dir/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
	})
	mux.HandleFunc("/opaque", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
	})
	// Some servers answer with a length but no content type; only the
	// final URL can decide then.
	mux.HandleFunc("/pool/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
	})
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClassifier(t)
	ctx := context.Background()

	tests := []struct {
		path string
		want Answer
	}{
		{"/listing", Yes},
		{"/disk.raw", No},
		{"/dir", Yes},
		{"/opaque", No},
		{"/pool/", Yes},
		{"/blob", No},
	}
	for _, tt := range tests {
		if got := c.IsSourceAPath(ctx, srv.URL+tt.path); got != tt.want {
			t.Errorf("IsSourceAPath(%s) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestIsSourceAPathErrorIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := testClassifier(t)
	if got := c.IsSourceAPath(context.Background(), srv.URL+"/missing"); got != Unknown {
		t.Errorf("answer = %s, want unknown", got)
	}
}

func TestIsSourceAPathLocalDirectory(t *testing.T) {
	c := testClassifier(t)
	ctx := context.Background()

	dir := t.TempDir()
	if got := c.IsSourceAPath(ctx, dir); got != Yes {
		t.Errorf("directory classified as %s, want yes", got)
	}

	file := filepath.Join(dir, "disk.raw")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := c.IsSourceAPath(ctx, file); got != No {
		t.Errorf("file classified as %s, want no", got)
	}
}

func TestIsWholeDiskExplicitTypeWins(t *testing.T) {
	c := testClassifier(t)
	ctx := context.Background()

	info := InstanceInfo{ImageSource: "https://example.com/x", ImageType: "partition", Kernel: "", Ramdisk: ""}
	if got := c.IsWholeDisk(ctx, info); got != No {
		t.Errorf("partition type = %s, want no", got)
	}

	info.ImageType = "whole-disk"
	if got := c.IsWholeDisk(ctx, info); got != Yes {
		t.Errorf("whole-disk type = %s, want yes", got)
	}
}

func TestIsWholeDiskRegistryRef(t *testing.T) {
	c := testClassifier(t)
	info := InstanceInfo{ImageSource: "oci://registry.example.com/os/disk:latest"}
	if got := c.IsWholeDisk(context.Background(), info); got != Yes {
		t.Errorf("registry ref = %s, want yes", got)
	}
}

func TestIsWholeDiskKernelRamdiskPresence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", "4096")
	}))
	defer srv.Close()

	c := testClassifier(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		kernel  string
		ramdisk string
		want    Answer
	}{
		{"both present", "k-ref", "r-ref", No},
		{"kernel only", "k-ref", "", No},
		{"ramdisk only", "", "r-ref", No},
		{"both absent", "", "", Yes},
	}
	for _, tt := range tests {
		info := InstanceInfo{ImageSource: srv.URL + "/disk.raw", Kernel: tt.kernel, Ramdisk: tt.ramdisk}
		if got := c.IsWholeDisk(ctx, info); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestIsWholeDiskPathSourceIsUnknown(t *testing.T) {
	c := testClassifier(t)
	info := InstanceInfo{ImageSource: t.TempDir()}
	if got := c.IsWholeDisk(context.Background(), info); got != Unknown {
		t.Errorf("path source = %s, want unknown", got)
	}
}
