package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/liveview/internal/engine"
	"github.com/roach88/liveview/internal/feed"
	"github.com/roach88/liveview/internal/ir"
	"github.com/roach88/liveview/internal/livequery"
	"github.com/roach88/liveview/internal/pin"
	"github.com/roach88/liveview/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	QueryFlags
	Database    string
	PinFile     string
	Poll        time.Duration
	MetricsAddr string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a view every time its membership changes",
		Long: `Bind a live view and print it on every membership change.

Records entering or leaving the view are printed; field edits that keep
membership unchanged are not. Writes from other processes are picked up by
polling the database every --poll. The pinned id comes from --pin, or from
--pin-file, which is re-read whenever it changes: each change rebinds the
view. With --format json every delivery is one JSON line.

Example:
  liveview watch --db ./tracks.db --from tracks --where '{"contains": {"title": "Swift"}}'
  liveview watch --db ./tracks.db --views ./views --view swift --pin-file ./pinned --metrics-addr :2112`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.PinFile, "pin-file", "", "file whose content is the pinned record id")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 500*time.Millisecond, "interval for detecting writes from other processes (0 disables)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("db")
	opts.QueryFlags.register(cmd)

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if opts.Pin != "" && opts.PinFile != "" {
		return NewExitError(ExitCommandError, "--pin and --pin-file are exclusive")
	}
	q, err := opts.Build()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	loop := engine.NewLoop(engine.WithLoopLogger(logger))

	storeOpts := []store.Option{store.WithDispatcher(loop)}
	if opts.Poll > 0 {
		storeOpts = append(storeOpts, store.WithPollInterval(opts.Poll))
	}
	st, err := openStore(opts.Database, logger, storeOpts...)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	pins, err := openPinSource(ctx, opts, logger)
	if err != nil {
		return err
	}
	if closer, ok := pins.(io.Closer); ok {
		defer closer.Close()
	}

	if opts.MetricsAddr != "" {
		stop := serveMetrics(opts.MetricsAddr, logger)
		defer stop()
	}

	lq := livequery.New(&q, st,
		livequery.WithPinSource(pins),
		livequery.WithDispatcher(loop),
		livequery.WithLogger(logger),
		livequery.WithContext(ctx),
	)

	printer := &deliveryPrinter{out: newFormatter(opts.RootOptions, cmd)}
	loop.Post(func() {
		lq.Observe(printer.print)
	})

	logger.Info("watching", "collection", q.From, "db", opts.Database)
	err = loop.Run(ctx)

	// The loop has stopped; Close runs on this goroutine.
	lq.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "delivery loop error", err)
	}
	logger.Info("watch stopped", "tasks_posted", loop.Posted(), "tasks_run", loop.Processed())
	return nil
}

// openPinSource returns the --pin-file watcher (started on ctx) or a
// fixed signal for --pin.
func openPinSource(ctx context.Context, opts *WatchOptions, logger *slog.Logger) (livequery.PinSource, error) {
	if opts.PinFile == "" {
		return pin.NewSignal(ir.RecordID(opts.Pin)), nil
	}
	src, err := pin.NewFileSource(opts.PinFile, pin.WithFileLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to watch pin file", err)
	}
	go src.Run(ctx)
	return src, nil
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown func.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// deliveryPrinter writes each delivery. It runs on the delivery loop only.
type deliveryPrinter struct {
	out *OutputFormatter
	seq int64
}

func (p *deliveryPrinter) print(snap *feed.Snapshot) {
	p.seq++
	_ = p.out.Stream(newDelivery(p.seq, snap))
}

func newDelivery(seq int64, snap *feed.Snapshot) Delivery {
	d := Delivery{Seq: seq, Nil: snap == nil}
	if snap == nil {
		return d
	}
	d.Records = toRecordList(snap.Records())
	if digest, err := snap.Digest(); err == nil {
		d.Digest = digest
	}
	return d
}
