package db

import (
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "images.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	img := &Image{
		Href:   "https://example.com/disk.qcow2",
		SHA256: "abc123",
		Format: "qcow2",
		Status: StatusPending,
	}

	if err := repo.Create(img); err != nil {
		t.Fatalf("failed to create image: %v", err)
	}

	retrieved, err := repo.GetByHref("https://example.com/disk.qcow2")
	if err != nil {
		t.Fatalf("failed to get image: %v", err)
	}
	if retrieved == nil {
		t.Fatal("image not found after create")
	}

	if retrieved.Href != img.Href || retrieved.SHA256 != img.SHA256 || retrieved.Format != img.Format {
		t.Errorf("retrieved image mismatch: got %+v, want %+v", retrieved, img)
	}
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	img, err := repo.GetByHref("https://example.com/nope.raw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img != nil {
		t.Errorf("expected nil for missing image, got %+v", img)
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := newTestRepo(t)

	img := &Image{
		Href:   "https://example.com/disk.qcow2",
		SHA256: "abc123",
		Status: StatusPending,
	}
	repo.Create(img)

	if err := repo.UpdateStatus(img.ID, StatusConverting, ""); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	updated, _ := repo.GetByHref("https://example.com/disk.qcow2")
	if updated.Status != StatusConverting {
		t.Errorf("status not updated: got %s, want %s", updated.Status, StatusConverting)
	}
}

func TestRepository_UpdateRecordsOutput(t *testing.T) {
	repo := newTestRepo(t)

	img := &Image{Href: "s3://bucket/disk.vmdk", SHA256: "h", Status: StatusPending}
	repo.Create(img)

	img.Format = "vmdk"
	img.Status = StatusReady
	img.OutputPath = "/var/lib/bootforge/images/h.raw"
	if err := repo.Update(img); err != nil {
		t.Fatalf("failed to update image: %v", err)
	}

	updated, _ := repo.GetByHref("s3://bucket/disk.vmdk")
	if updated.OutputPath != img.OutputPath {
		t.Errorf("output path not persisted: got %q", updated.OutputPath)
	}
	if updated.Format != "vmdk" {
		t.Errorf("format not persisted: got %q", updated.Format)
	}
}

func TestRepository_List(t *testing.T) {
	repo := newTestRepo(t)

	repo.Create(&Image{Href: "https://example.com/a.raw", SHA256: "hash1", Status: StatusReady})
	repo.Create(&Image{Href: "https://example.com/b.raw", SHA256: "hash2", Status: StatusFailed})

	images, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list images: %v", err)
	}

	if len(images) != 2 {
		t.Errorf("expected 2 images, got %d", len(images))
	}
}
