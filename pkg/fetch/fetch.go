package fetch

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/cmdutil"
	"github.com/deploykit/bootforge/pkg/errors"
)

// Options carry per-fetch integrity and credential inputs.
type Options struct {
	// Checksum is the expected digest, bare hex or "algo:hex". Empty means
	// the caller has nothing to verify against.
	Checksum string
	// ChecksumAlgo overrides algorithm inference when set.
	ChecksumAlgo string
	// AuthData is passed to transports that want credentials.
	AuthData map[string]string
}

// Fetcher downloads image references to local files, verifying integrity and
// transparently expanding zstd-compressed payloads.
type Fetcher struct {
	cfg      *config.Config
	registry *Registry
	runner   cmdutil.Runner
}

func NewFetcher(cfg *config.Config, runner cmdutil.Runner) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		registry: NewRegistry(cfg),
		runner:   runner,
	}
}

// Fetch downloads ref into destPath. The destination never survives a failed
// fetch: any error after file creation removes it before returning.
func (f *Fetcher) Fetch(ctx context.Context, ref, destPath string, opts Options) error {
	svc, err := f.registry.ServiceFor(ctx, ref)
	if err != nil {
		return err
	}
	if svc.IsAuthSetNeeded() && opts.AuthData != nil {
		if err := svc.SetImageAuth(ref, opts.AuthData); err != nil {
			return errors.Wrap(err, "set image auth")
		}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return errors.Wrap(err, "create destination file")
	}
	err = svc.Download(ctx, ref, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		return errors.Wrap(err, "download image")
	}

	if err := f.verify(svc, destPath, opts); err != nil {
		os.Remove(destPath)
		return err
	}

	return HandleZstdCompression(ctx, f.runner, destPath, f.cfg.DisableZstd)
}

func (f *Fetcher) verify(svc Service, path string, opts Options) error {
	if f.cfg.DisableChecksum {
		slog.Warn("checksum_verification_disabled", "path", path)
		return nil
	}
	if opts.Checksum == "" {
		return nil
	}

	// A checksum the transport proved on the wire makes re-reading the
	// file pointless.
	if verified := svc.TransferVerifiedChecksum(); verified != "" {
		expected := opts.Checksum
		if _, rest, ok := strings.Cut(expected, ":"); ok {
			expected = rest
		}
		if strings.EqualFold(verified, expected) {
			slog.Info("checksum_verified_in_transfer", "path", path)
			return nil
		}
		return &ChecksumError{Path: path, Expected: expected, Actual: verified}
	}

	if err := VerifyChecksum(path, opts.Checksum, opts.ChecksumAlgo); err != nil {
		return err
	}
	slog.Info("checksum_verified", "path", path)
	return nil
}

// DownloadSize reports the remote size of ref without downloading it.
func (f *Fetcher) DownloadSize(ctx context.Context, ref string) (int64, error) {
	info, err := f.Show(ctx, ref)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Show returns transport metadata for ref.
func (f *Fetcher) Show(ctx context.Context, ref string) (*ImageInfo, error) {
	svc, err := f.registry.ServiceFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	return svc.Show(ctx, ref)
}

// Head issues a metadata-only probe for ref.
func (f *Fetcher) Head(ctx context.Context, ref string) (*HeadInfo, error) {
	svc, err := f.registry.ServiceFor(ctx, ref)
	if err != nil {
		return nil, err
	}
	return svc.Head(ctx, ref)
}
