package fetch

import (
	// Register SHA-384 and SHA-512 with the digest package.
	_ "crypto/sha512"
	"fmt"
	"os"
	"strings"

	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/opencontainers/go-digest"
)

// ChecksumError means the downloaded bytes do not match what the caller
// asked for. It is terminal; the file has already been removed by the time
// the caller sees it.
type ChecksumError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s",
		e.Path, e.Expected, e.Actual)
}

// inferAlgorithm maps a bare hex digest to its algorithm by length. Callers
// that know the algorithm pass it explicitly and skip this.
func inferAlgorithm(checksum string) (digest.Algorithm, error) {
	switch len(checksum) {
	case 64:
		return digest.SHA256, nil
	case 96:
		return digest.SHA384, nil
	case 128:
		return digest.SHA512, nil
	}
	return "", fmt.Errorf("cannot infer checksum algorithm from %d-character value", len(checksum))
}

// VerifyChecksum recomputes the digest of path and compares it to checksum.
// checksum may be bare hex or an "algo:hex" value; algo, when non-empty,
// overrides both.
func VerifyChecksum(path, checksum, algo string) error {
	expected := checksum
	algorithm := digest.Algorithm(strings.ToLower(algo))
	if prefix, rest, ok := strings.Cut(checksum, ":"); ok {
		if algorithm == "" {
			algorithm = digest.Algorithm(strings.ToLower(prefix))
		}
		expected = rest
	}
	if algorithm == "" {
		var err error
		algorithm, err = inferAlgorithm(expected)
		if err != nil {
			return err
		}
	}
	if !algorithm.Available() {
		return fmt.Errorf("checksum algorithm %s is not supported", algorithm)
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open image for checksum verification")
	}
	defer f.Close()

	dgst, err := algorithm.FromReader(f)
	if err != nil {
		return errors.Wrap(err, "compute image checksum")
	}
	actual := dgst.Encoded()
	if !strings.EqualFold(actual, expected) {
		return &ChecksumError{Path: path, Expected: expected, Actual: actual}
	}
	return nil
}
