package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/deploykit/bootforge/internal/config"
	"github.com/deploykit/bootforge/pkg/cmdutil"
	"github.com/deploykit/bootforge/pkg/convert"
	"github.com/deploykit/bootforge/pkg/db"
	"github.com/deploykit/bootforge/pkg/errors"
	"github.com/deploykit/bootforge/pkg/fetch"
	"github.com/deploykit/bootforge/pkg/format"
	appfsm "github.com/deploykit/bootforge/pkg/fsm"
	"github.com/deploykit/bootforge/pkg/imagecheck"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var (
	convertChecksum     string
	convertChecksumAlgo string
	convertExpected     string
	convertOutput       string
)

var convertCmd = &cobra.Command{
	Use:   "convert <image-ref>",
	Short: "Fetch an image, safety-check it, and normalize it to raw",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVar(&convertChecksum, "checksum", "", "Expected checksum (bare hex or algo:hex)")
	convertCmd.Flags().StringVar(&convertChecksumAlgo, "checksum-algo", "", "Checksum algorithm override")
	convertCmd.Flags().StringVar(&convertExpected, "expected-format", "", "Format the image must have")
	convertCmd.Flags().StringVar(&convertOutput, "output", "", "Destination for the raw image")
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	href := args[0]

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.WorkDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	runner := cmdutil.NewExecRunner()
	fetcher := fetch.NewFetcher(cfg, runner)
	inspector := format.NewInspector()
	gate := imagecheck.NewGate(cfg, inspector)
	pipeline := convert.NewPipeline(cfg, gate, inspector, runner)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(repo, fetcher, gate, pipeline, cfg.WorkDir, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &appfsm.ImageRequest{
		Href:           href,
		Checksum:       convertChecksum,
		ChecksumAlgo:   convertChecksumAlgo,
		ExpectedFormat: convertExpected,
		OutputPath:     convertOutput,
	}
	resp := &appfsm.ImageResponse{}

	version, err := start(ctx, href, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "FSM execution failed")
	}

	slog.Info("convert completed", "status", resp.Status, "format", resp.Format, "output", resp.OutputPath)

	return nil
}
