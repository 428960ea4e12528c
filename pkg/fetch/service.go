// Package fetch resolves opaque image references to bytes on local disk.
// A reference's scheme selects the transport (s3, http(s), file); the rest
// of the pipeline treats the selected Service as an opaque capability.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/deploykit/bootforge/internal/config"
)

// ImageInfo is transport-level metadata about an image reference.
type ImageInfo struct {
	Size       int64
	Properties map[string]string
}

// HeadInfo is the result of a metadata-only probe, used by the policy
// classifier to distinguish file sources from directory listings.
type HeadInfo struct {
	ContentType      string
	HasContentLength bool
	ContentLength    int64
	// FinalURL is the URL after redirects; may differ from the reference.
	FinalURL string
}

// Service is one content-fetch collaborator.
type Service interface {
	// Download streams the referenced image into w.
	Download(ctx context.Context, ref string, w io.Writer) error
	// Show returns size and stored properties for the reference.
	Show(ctx context.Context, ref string) (*ImageInfo, error)
	// Head issues a metadata-only probe without fetching content.
	Head(ctx context.Context, ref string) (*HeadInfo, error)
	// IsAuthSetNeeded reports whether credentials must be injected
	// before Download.
	IsAuthSetNeeded() bool
	// SetImageAuth conveys caller credentials to the transport.
	SetImageAuth(ref string, auth map[string]string) error
	// TransferVerifiedChecksum returns the checksum the transport itself
	// verified during the last Download, or "" if it proved nothing.
	TransferVerifiedChecksum() string
}

// Registry dispatches references to services by scheme.
type Registry struct {
	cfg *config.Config
}

func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{cfg: cfg}
}

// ServiceFor selects the collaborator for ref. Bare paths and file://
// references resolve to the local filesystem service.
func (r *Registry) ServiceFor(ctx context.Context, ref string) (Service, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("unparseable image reference %q: %w", ref, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPService(), nil
	case "s3":
		return NewS3Service(ctx, r.cfg.S3Bucket, r.cfg.S3Region)
	case "file", "":
		return NewFileService(), nil
	}
	return nil, fmt.Errorf("no image service supports scheme %q", u.Scheme)
}

// IsCatalogRef reports whether ref points at the configured object catalog,
// where stored properties (image type, kernel/ramdisk associations) are
// available via Show.
func IsCatalogRef(ref string) bool {
	return strings.HasPrefix(ref, "s3://")
}

// IsRegistryRef reports whether ref names a container-registry artifact.
// Download of such references is not supported here, but the policy
// classifier still needs to recognize them.
func IsRegistryRef(ref string) bool {
	return strings.HasPrefix(ref, "oci://") || strings.HasPrefix(ref, "docker://")
}
