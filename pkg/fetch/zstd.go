package fetch

import (
	"bytes"
	"context"
	"log/slog"
	"os"

	"github.com/deploykit/bootforge/pkg/cmdutil"
	"github.com/deploykit/bootforge/pkg/errors"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// HandleZstdCompression decompresses path in place when it starts with the
// zstd frame magic. Decompression failure is not fatal: the original file is
// restored and left for the rest of the pipeline to judge.
func HandleZstdCompression(ctx context.Context, runner cmdutil.Runner, path string, disabled bool) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open image for compression probe")
	}
	magic := make([]byte, len(zstdMagic))
	n, _ := f.Read(magic)
	f.Close()
	if n < len(zstdMagic) || !bytes.Equal(magic, zstdMagic) {
		return nil
	}

	if disabled {
		slog.Warn("zstd_decompression_disabled", "path", path)
		return nil
	}

	compressed := path + ".zst"
	if err := os.Rename(path, compressed); err != nil {
		return errors.Wrap(err, "stage compressed image")
	}

	slog.Info("zstd_decompress_start", "path", path)
	if out, err := runner.Run(ctx, "zstd", "-d", "--rm", compressed); err != nil {
		slog.Error("zstd_decompress_failed", "path", path, "error", err, "output", string(out))
		if rerr := os.Rename(compressed, path); rerr != nil {
			return errors.Wrap(rerr, "restore compressed image after failed decompression")
		}
		return nil
	}
	slog.Info("zstd_decompress_complete", "path", path)
	return nil
}
