package fetch

import (
	"context"
	"testing"

	"github.com/deploykit/bootforge/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		WorkDir:  t.TempDir(),
		S3Region: "us-east-1",
	}
}

func TestServiceForDispatch(t *testing.T) {
	reg := NewRegistry(testConfig(t))
	ctx := context.Background()

	tests := []struct {
		ref  string
		want string
	}{
		{"https://example.com/disk.raw", "*fetch.HTTPService"},
		{"http://example.com/disk.raw", "*fetch.HTTPService"},
		{"file:///var/lib/images/disk.raw", "*fetch.FileService"},
		{"/var/lib/images/disk.raw", "*fetch.FileService"},
	}

	for _, tt := range tests {
		svc, err := reg.ServiceFor(ctx, tt.ref)
		if err != nil {
			t.Errorf("ServiceFor(%q) failed: %v", tt.ref, err)
			continue
		}
		got := typeName(svc)
		if got != tt.want {
			t.Errorf("ServiceFor(%q) = %s, want %s", tt.ref, got, tt.want)
		}
	}
}

func TestServiceForUnknownScheme(t *testing.T) {
	reg := NewRegistry(testConfig(t))
	if _, err := reg.ServiceFor(context.Background(), "gopher://old.example.com/disk"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestRefClassifiers(t *testing.T) {
	if !IsCatalogRef("s3://bucket/key") {
		t.Error("s3 ref not recognized as catalog")
	}
	if IsCatalogRef("https://example.com/x") {
		t.Error("https ref misclassified as catalog")
	}
	if !IsRegistryRef("oci://registry.example.com/os/disk") {
		t.Error("oci ref not recognized as registry")
	}
	if !IsRegistryRef("docker://registry.example.com/os/disk") {
		t.Error("docker ref not recognized as registry")
	}
	if IsRegistryRef("s3://bucket/key") {
		t.Error("s3 ref misclassified as registry")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *HTTPService:
		return "*fetch.HTTPService"
	case *FileService:
		return "*fetch.FileService"
	case *S3Service:
		return "*fetch.S3Service"
	}
	return "unknown"
}
