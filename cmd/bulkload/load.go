package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hugolhafner/go-bulkload"
	"github.com/hugolhafner/go-bulkload/internal/config"
	"github.com/hugolhafner/go-bulkload/pipeline"
	"github.com/hugolhafner/go-bulkload/source"
	"github.com/hugolhafner/go-bulkload/spill"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newLoadCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "load [file]",
		Short: "Load a CSV file of key/value rows into the store.",
		Long: `Load reads key/value rows from a CSV file, or standard input when the file
is "-" or omitted, and writes them into the configured store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfg, stderr)
			if err != nil {
				return err
			}
			defer rt.Close()

			csvOpts, err := cfg.CSVOptions()
			if err != nil {
				return err
			}
			csvOpts = append(csvOpts, source.WithCSVLogger(rt.logger))

			var src *source.CSVSource
			if len(args) == 0 || args[0] == "-" {
				src, err = source.NewCSVSource(io.NopCloser(stdin), csvOpts...)
			} else {
				src, err = source.OpenCSV(args[0], csvOpts...)
			}
			if err != nil {
				return err
			}
			defer src.Close()

			return rt.load(cmd.Context(), src, stdout)
		},
	}

	bindConfig(cmd, &cfg)
	return cmd
}

func newReplayCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "replay <spill-file>",
		Short: "Load the records of a spill file written by an earlier run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.SpillPath == args[0] {
				return errors.New("replay: --spill must not name the file being replayed")
			}

			rt, err := newRuntime(cfg, stderr)
			if err != nil {
				return err
			}
			defer rt.Close()

			src, err := spill.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			return rt.load(cmd.Context(), src, stdout)
		},
	}

	bindConfig(cmd, &cfg)
	return cmd
}

// load runs a single load of src, serving metrics alongside it when
// configured, then reports and spills the result.
func (rt *runtime) load(ctx context.Context, src source.Source, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			rt.logger.Warn("Failed to close store", "error", err)
		}
	}()

	popts, err := rt.cfg.PipelineOptions()
	if err != nil {
		return err
	}
	popts = append(popts, pipeline.WithTelemetry(rt.tel))

	loader, err := bulkload.NewLoader(
		st,
		bulkload.WithLogger(rt.logger),
		bulkload.WithPipelineOptions(popts...),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	if rt.registry != nil {
		g.Go(
			func() error {
				return rt.serveMetrics(serveCtx)
			},
		)
	}

	var res *pipeline.Result
	g.Go(
		func() error {
			defer stopServing()

			var err error
			res, err = loader.Load(gctx, src)
			return err
		},
	)

	loadErr := g.Wait()
	if res == nil {
		return loadErr
	}

	printSummary(stdout, res)

	if len(res.Failed) > 0 && rt.cfg.SpillPath != "" {
		if err := writeSpill(rt.cfg.SpillPath, res.Failed); err != nil {
			return errors.Join(loadErr, err)
		}
		rt.logger.Info("Wrote failed records", "path", rt.cfg.SpillPath, "records", len(res.Failed))
	}

	switch {
	case loadErr != nil:
		return loadErr
	case res.Cancelled:
		return errors.New("load cancelled")
	case !res.Success():
		return fmt.Errorf("%d record(s) failed", len(res.Failed))
	}
	return nil
}

func printSummary(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "run:       %s\n", res.RunID)
	fmt.Fprintf(w, "state:     %s\n", res.State)
	fmt.Fprintf(w, "records:   %d\n", res.TotalRecords)
	fmt.Fprintf(w, "committed: %d\n", res.Committed)
	fmt.Fprintf(w, "failed:    %d\n", len(res.Failed))
	fmt.Fprintf(w, "skipped:   %d\n", res.Skipped)
	fmt.Fprintf(w, "batches:   %d (%d failed)\n", res.Batches, res.FailedBatches)
	fmt.Fprintf(w, "duration:  %s\n", res.Duration)
}

func writeSpill(path string, failed []pipeline.FailedRecord) (err error) {
	w, err := spill.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	for _, f := range failed {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		entry := spill.Entry{
			Record:   f.Record,
			Error:    msg,
			Sequence: f.Sequence,
			Attempts: f.Attempts,
		}
		if err := w.Write(entry); err != nil {
			return err
		}
	}
	return nil
}
