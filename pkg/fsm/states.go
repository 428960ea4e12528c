package fsm

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/deploykit/bootforge/pkg/convert"
	"github.com/deploykit/bootforge/pkg/db"
	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/deploykit/bootforge/pkg/fetch"
	"github.com/deploykit/bootforge/pkg/format"
	"github.com/deploykit/bootforge/pkg/imagecheck"
	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo       *db.Repository
	fetcher    *fetch.Fetcher
	gate       *imagecheck.Gate
	pipeline   *convert.Pipeline
	workDir    string
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(
	repo *db.Repository,
	fetcher *fetch.Fetcher,
	gate *imagecheck.Gate,
	pipeline *convert.Pipeline,
	workDir string,
	maxRetries int,
) *Machine {
	return &Machine{
		repo:       repo,
		fetcher:    fetcher,
		gate:       gate,
		pipeline:   pipeline,
		workDir:    workDir,
		maxRetries: maxRetries,
	}
}

func (m *Machine) checkRetries(ctx context.Context, href string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "href", href, "max_retries", m.maxRetries)
		return fmt.Errorf("max retries (%d) exceeded", m.maxRetries)
	}
	return nil
}

// handleCheckDB checks if the image was already processed (idempotency)
func (m *Machine) handleCheckDB(ctx context.Context, req *fsm.Request[ImageRequest, ImageResponse]) (*fsm.Response[ImageResponse], error) {
	slog.Info("fsm_state_check_db", "href", req.Msg.Href)

	if err := m.checkRetries(ctx, req.Msg.Href); err != nil {
		return nil, fsm.Abort(err)
	}

	img, err := m.repo.GetByHref(req.Msg.Href)
	if err != nil {
		slog.Error("database_check_failed", "href", req.Msg.Href, "error", err)
		return nil, fsm.Abort(errors.Wrap(err, "database error"))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &ImageResponse{}
	}

	if img != nil {
		resp.ImageID = img.ID
		resp.SHA256 = img.SHA256
		resp.Format = img.Format
		resp.OutputPath = img.OutputPath
		resp.Status = img.Status

		if img.Status == db.StatusReady {
			slog.Info("image_already_ready", "href", req.Msg.Href, "image_id", img.ID)
			return fsm.NewResponse(resp), nil
		}
		slog.Info("image_found_continue_processing", "href", req.Msg.Href, "image_id", img.ID, "status", img.Status)
	} else {
		img = &db.Image{
			Href:   req.Msg.Href,
			SHA256: "",
			Status: db.StatusPending,
		}
		if err := m.repo.Create(img); err != nil {
			slog.Error("create_image_failed", "href", req.Msg.Href, "error", err)
			return nil, errors.Wrap(err, "failed to create image record")
		}
		resp.ImageID = img.ID
		slog.Info("image_created", "href", req.Msg.Href, "image_id", img.ID)
	}

	return fsm.NewResponse(resp), nil
}

// handleFetch downloads the image into the staging area
func (m *Machine) handleFetch(ctx context.Context, req *fsm.Request[ImageRequest, ImageResponse]) (*fsm.Response[ImageResponse], error) {
	slog.Info("fsm_state_fetch", "href", req.Msg.Href)

	if err := m.checkRetries(ctx, req.Msg.Href); err != nil {
		return nil, fsm.Abort(err)
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.ImageID, db.StatusDownloading, ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}

	stageDir := filepath.Join(m.workDir, "staging")
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		slog.Error("staging_dir_creation_failed", "path", stageDir, "error", err)
		return nil, errors.Wrap(err, "failed to create staging dir")
	}

	stagePath := filepath.Join(stageDir, uuid.NewString()+".part")
	opts := fetch.Options{Checksum: req.Msg.Checksum, ChecksumAlgo: req.Msg.ChecksumAlgo}
	if err := m.fetcher.Fetch(ctx, req.Msg.Href, stagePath, opts); err != nil {
		slog.Error("fetch_failed", "href", req.Msg.Href, "error", err)
		var ck *fetch.ChecksumError
		if stderrors.As(err, &ck) {
			// A wrong checksum never heals on retry.
			m.repo.UpdateStatus(resp.ImageID, db.StatusFailed, err.Error())
			return nil, fsm.Abort(err)
		}
		return nil, errors.Wrap(err, "failed to fetch image")
	}

	f, err := os.Open(stagePath)
	if err != nil {
		return nil, errors.Wrap(err, "open staged image")
	}
	dgst, err := digest.SHA256.FromReader(f)
	f.Close()
	if err != nil {
		return nil, errors.Wrap(err, "digest staged image")
	}

	resp.SHA256 = dgst.Encoded()
	resp.StagePath = stagePath

	img, _ := m.repo.GetByHref(req.Msg.Href)
	if img != nil {
		img.SHA256 = resp.SHA256
		if err := m.repo.Update(img); err != nil {
			return nil, errors.Wrap(err, "failed to update image")
		}
	}

	slog.Info("fetch_complete", "href", req.Msg.Href, "sha256", resp.SHA256[:16]+"...")
	return fsm.NewResponse(resp), nil
}

// handleInspect identifies the format and runs the safety gate
func (m *Machine) handleInspect(ctx context.Context, req *fsm.Request[ImageRequest, ImageResponse]) (*fsm.Response[ImageResponse], error) {
	slog.Info("fsm_state_inspect", "href", req.Msg.Href)

	if err := m.checkRetries(ctx, req.Msg.Href); err != nil {
		return nil, fsm.Abort(err)
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.ImageID, db.StatusInspecting, ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}

	fm, err := m.gate.SafetyCheck(resp.StagePath, req.Msg.Href)
	if err != nil {
		os.Remove(resp.StagePath)
		m.repo.UpdateStatus(resp.ImageID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(err)
	}
	if err := m.gate.CheckPermitted(fm, format.Format(req.Msg.ExpectedFormat), req.Msg.Href); err != nil {
		os.Remove(resp.StagePath)
		m.repo.UpdateStatus(resp.ImageID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(err)
	}

	resp.Format = string(fm)
	img, _ := m.repo.GetByHref(req.Msg.Href)
	if img != nil {
		img.Format = resp.Format
		if err := m.repo.Update(img); err != nil {
			return nil, errors.Wrap(err, "failed to update image")
		}
	}

	slog.Info("inspect_complete", "href", req.Msg.Href, "format", fm)
	return fsm.NewResponse(resp), nil
}

// handleConvert normalizes the staged image to raw
func (m *Machine) handleConvert(ctx context.Context, req *fsm.Request[ImageRequest, ImageResponse]) (*fsm.Response[ImageResponse], error) {
	slog.Info("fsm_state_convert", "href", req.Msg.Href)

	if err := m.checkRetries(ctx, req.Msg.Href); err != nil {
		return nil, fsm.Abort(err)
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.repo.UpdateStatus(resp.ImageID, db.StatusConverting, ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}

	output := req.Msg.OutputPath
	if output == "" {
		output = filepath.Join(m.workDir, "images", resp.SHA256+".raw")
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output dir")
	}

	if err := m.pipeline.ToRaw(ctx, req.Msg.Href, output, resp.StagePath); err != nil {
		slog.Error("convert_failed", "href", req.Msg.Href, "error", err)
		m.repo.UpdateStatus(resp.ImageID, db.StatusFailed, err.Error())
		return nil, fsm.Abort(err)
	}

	resp.OutputPath = output
	resp.StagePath = ""

	img, _ := m.repo.GetByHref(req.Msg.Href)
	if img != nil {
		img.OutputPath = output
		if err := m.repo.Update(img); err != nil {
			return nil, errors.Wrap(err, "failed to update image")
		}
	}

	return fsm.NewResponse(resp), nil
}

// handleComplete marks the image as ready
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[ImageRequest, ImageResponse]) (*fsm.Response[ImageResponse], error) {
	slog.Info("fsm_state_complete", "href", req.Msg.Href)

	resp := req.W.Msg
	if resp == nil {
		resp = &ImageResponse{}
	}

	if err := m.repo.UpdateStatus(resp.ImageID, db.StatusReady, ""); err != nil {
		slog.Error("status_update_failed", "image_id", resp.ImageID, "error", err)
		return nil, errors.Wrap(err, "failed to update status")
	}
	resp.Status = db.StatusReady

	slog.Info("fsm_complete", "href", req.Msg.Href, "output", resp.OutputPath)
	return fsm.NewResponse(resp), nil
}
