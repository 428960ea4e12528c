// Package fsm implements the image normalization workflow. It orchestrates
// download, format inspection, safety checking and raw conversion of disk
// images using the superfly/fsm library, with sqlite bookkeeping for
// idempotent resume.
package fsm

import (
	"context"

	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/superfly/fsm"
)

// Register registers the image normalization FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ImageRequest, ImageResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ImageRequest, ImageResponse](manager, "image-process").
		Start(StateCheckDB, m.handleCheckDB).
		To(StateFetch, m.handleFetch).
		To(StateInspect, m.handleInspect).
		To(StateConvert, m.handleConvert).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
