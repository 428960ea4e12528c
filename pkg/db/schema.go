package db

// Schema defines the SQLite schema for processed images. One row per image
// reference, keyed by href, recording the detected format and where the
// normalized output landed.
const Schema = `
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    href TEXT NOT NULL UNIQUE,
    sha256 TEXT NOT NULL,
    format TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL CHECK(status IN ('pending', 'downloading', 'inspecting', 'converting', 'ready', 'failed', 'cleaned')),
    output_path TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_images_href ON images(href);
CREATE INDEX IF NOT EXISTS idx_images_status ON images(status);
CREATE INDEX IF NOT EXISTS idx_images_created_at ON images(created_at);
`

// Status constants
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusInspecting  = "inspecting"
	StatusConverting  = "converting"
	StatusReady       = "ready"
	StatusFailed      = "failed"
	StatusCleaned     = "cleaned"
)

// Image represents one processed image record
type Image struct {
	ID           int64
	Href         string
	SHA256       string
	Format       string
	Status       string
	OutputPath   string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
