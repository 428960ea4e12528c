package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/deploykit/bootforge/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for images
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new image record
func (r *Repository) Create(img *Image) error {
	slog.Info("database_create_image", "href", img.Href, "status", img.Status)

	query := `
		INSERT INTO images (href, sha256, format, status, output_path, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		img.Href, img.SHA256, img.Format, img.Status,
		img.OutputPath, img.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "href", img.Href, "error", err)
		return errors.Wrap(err, "failed to insert image")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "href", img.Href, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	img.ID = id

	slog.Info("database_image_created", "href", img.Href, "image_id", img.ID, "status", img.Status)
	return nil
}

// GetByHref retrieves an image by its reference
func (r *Repository) GetByHref(href string) (*Image, error) {
	query := `
		SELECT id, href, sha256, format, status,
		       output_path, error_message, created_at, updated_at
		FROM images WHERE href = ?
	`
	var img Image
	var outputPath, errorMessage sql.NullString

	err := r.db.QueryRow(query, href).Scan(
		&img.ID, &img.Href, &img.SHA256, &img.Format, &img.Status,
		&outputPath, &errorMessage,
		&img.CreatedAt, &img.UpdatedAt)

	if err == sql.ErrNoRows {
		slog.Info("database_image_not_found", "href", href)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "href", href, "error", err)
		return nil, errors.Wrap(err, "failed to query image")
	}

	img.OutputPath = outputPath.String
	img.ErrorMessage = errorMessage.String

	slog.Info("database_image_found", "href", href, "image_id", img.ID, "status", img.Status)
	return &img, nil
}

// Update updates an existing image record
func (r *Repository) Update(img *Image) error {
	slog.Info("database_update_image", "image_id", img.ID, "href", img.Href, "status", img.Status)

	query := `
		UPDATE images
		SET sha256 = ?, format = ?, status = ?,
		    output_path = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		img.SHA256, img.Format, img.Status,
		img.OutputPath, img.ErrorMessage, img.ID)
	if err != nil {
		slog.Error("database_update_failed", "image_id", img.ID, "href", img.Href, "error", err)
		return errors.Wrap(err, "failed to update image")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "image_id", img.ID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_image_not_found_for_update", "image_id", img.ID)
		return fmt.Errorf("image not found: id=%d", img.ID)
	}

	return nil
}

// UpdateStatus updates only the status field
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "image_id", id, "status", status)

	query := `UPDATE images SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.Exec(query, status, errorMessage, id)
	if err != nil {
		slog.Error("database_status_update_failed", "image_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// List retrieves all images, newest first
func (r *Repository) List() ([]*Image, error) {
	query := `
		SELECT id, href, sha256, format, status,
		       output_path, error_message, created_at, updated_at
		FROM images ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list images")
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		var img Image
		var outputPath, errorMessage sql.NullString

		err := rows.Scan(
			&img.ID, &img.Href, &img.SHA256, &img.Format, &img.Status,
			&outputPath, &errorMessage,
			&img.CreatedAt, &img.UpdatedAt)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}

		img.OutputPath = outputPath.String
		img.ErrorMessage = errorMessage.String

		images = append(images, &img)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "image_count", len(images))
	return images, nil
}

// Delete deletes an image by ID
func (r *Repository) Delete(id int64) error {
	slog.Info("database_delete_image", "image_id", id)

	query := `DELETE FROM images WHERE id = ?`
	_, err := r.db.Exec(query, id)
	if err != nil {
		slog.Error("database_delete_failed", "image_id", id, "error", err)
		return errors.Wrap(err, "failed to delete image")
	}
	return nil
}
