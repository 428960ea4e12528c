// Package imagecheck enforces the image security policy: every image is
// format-inspected and safety-checked before any later stage touches it, and
// only administrator-permitted formats pass.
package imagecheck

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/format"
)

// ImageCacheActor is the audit identity used when no node triggered the
// check, i.e. the shared image cache is being populated.
const ImageCacheActor = "image cache"

// RawImageFormats are the formats usable as-is on a block device. gpt
// denotes a whole-disk image with a GUID partition table, not a container
// format requiring conversion.
var RawImageFormats = map[format.Format]bool{
	format.FormatRaw: true,
	format.FormatGPT: true,
}

// legacyAliases are historical kernel/ramdisk format names. Assets carrying
// them are raw in practice and never reach the converter, so a mismatch
// against them is a known data artifact rather than a security signal.
var legacyAliases = map[format.Format]bool{
	"aki": true,
	"ari": true,
}

// InvalidImageError is always security-relevant: a disallowed format, a
// failed safety inspection, or an expected/actual format mismatch.
type InvalidImageError struct {
	Actor  string
	Reason string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image (actor %s): %s", e.Actor, e.Reason)
}

// Gate performs safety checks and permitted-format policy decisions.
type Gate struct {
	inspector *format.Inspector
	permitted map[format.Format]bool
	log       *slog.Logger
}

// NewGate builds a gate from the process configuration. "raw" in the
// permitted set implies gpt as well.
func NewGate(cfg *config.Config, inspector *format.Inspector) *Gate {
	permitted := make(map[format.Format]bool, len(cfg.PermittedFormats)+1)
	for _, name := range cfg.PermittedFormats {
		permitted[format.Format(name)] = true
	}
	if permitted[format.FormatRaw] {
		permitted[format.FormatGPT] = true
	}
	return &Gate{
		inspector: inspector,
		permitted: permitted,
		log:       slog.Default(),
	}
}

// SafetyCheck identifies the file's format and runs the format-specific
// unsafe-feature inspection. actor is the node identity, or ImageCacheActor.
func (g *Gate) SafetyCheck(path, actor string) (format.Format, error) {
	desc, err := g.inspector.Inspect(path)
	if err != nil {
		g.log.Error("security_image_unparseable", "actor", actor, "path", path, "error", err)
		return "", &InvalidImageError{Actor: actor, Reason: "image could not be parsed by the format inspector"}
	}
	if err := desc.SafetyCheck(); err != nil {
		var sc *format.SafetyCheckError
		reason := "image failed safety checking"
		if errors.As(err, &sc) {
			reason = sc.Reason
		}
		g.log.Error("security_safety_check_failed", "actor", actor, "path", path, "format", desc.Format, "error", err)
		return "", &InvalidImageError{Actor: actor, Reason: reason}
	}
	return desc.Format, nil
}

// CheckPermitted fails unless fm is in the permitted set and, when expected
// is non-empty, matches it. Match rule: exact equality, or expected "raw"
// with fm in RawImageFormats, or expected being a legacy kernel/ramdisk
// alias.
func (g *Gate) CheckPermitted(fm, expected format.Format, actor string) error {
	if !g.permitted[fm] {
		g.log.Error("security_format_not_permitted", "actor", actor, "format", fm)
		return &InvalidImageError{
			Actor:  actor,
			Reason: fmt.Sprintf("format %s is not in the permitted-formats list", fm),
		}
	}
	if expected != "" && !formatMatches(fm, expected) {
		g.log.Error("security_format_mismatch", "actor", actor, "format", fm, "expected", expected)
		return &InvalidImageError{
			Actor:  actor,
			Reason: fmt.Sprintf("format %s does not match expected format %s", fm, expected),
		}
	}
	return nil
}

// Permitted reports whether the policy allows fm.
func (g *Gate) Permitted(fm format.Format) bool {
	return g.permitted[fm]
}

func formatMatches(actual, expected format.Format) bool {
	if legacyAliases[expected] {
		return true
	}
	if expected == format.FormatRaw && RawImageFormats[actual] {
		return true
	}
	return expected == actual
}
