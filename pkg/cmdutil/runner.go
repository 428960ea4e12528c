// Package cmdutil abstracts invocation of the external tools the pipeline
// depends on (qemu-img, mkisofs, mkfs, zstd, ...) so callers can be tested
// without the binaries installed.
package cmdutil

import (
	"context"
	"fmt"
	"os/exec"
)

// Runner executes an external command and returns its combined output.
// A non-zero exit status is returned as an error carrying the output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. It is the only Runner used outside
// of tests.
type ExecRunner struct{}

func NewExecRunner() ExecRunner { return ExecRunner{} }

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w: %s", name, err, string(out))
	}
	return out, nil
}
