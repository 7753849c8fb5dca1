package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/fragments/internal/logger"
	"github.com/marmos91/fragments/pkg/config"
	"github.com/marmos91/fragments/pkg/content"
	"github.com/marmos91/fragments/pkg/fragment"
	"github.com/marmos91/fragments/pkg/metadata"
	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/marmos91/fragments/pkg/service"
	flag "github.com/spf13/pflag"
)

const usage = `Fragments - owner-scoped typed content store

Usage:
  fragments [--config path] <command> [flags]

Commands:
  init     Write a default configuration file
  create   Store a new fragment          (--owner --type --file)
  list     List an owner's fragments     (--owner [--expand])
  info     Show fragment metadata        (--owner --id)
  get      Read fragment data            (--owner --id [--as type] [--out file])
  update   Replace fragment data         (--owner --id --type --file)
  delete   Delete a fragment             (--owner --id)
  gc       Remove orphaned payloads      ([--dry-run])
  serve    Run background gc and the metrics endpoint until interrupted

Run 'fragments <command> --help' for command flags.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps domain errors to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, fragment.ErrNotFound):
		return 3
	case errors.Is(err, fragment.ErrValidation),
		errors.Is(err, service.ErrUnsupportedType),
		errors.Is(err, service.ErrUnsupportedConversion),
		errors.Is(err, service.ErrConversionUnavailable),
		errors.Is(err, service.ErrTypeMismatch):
		return 4
	case errors.Is(err, service.ErrRateLimited):
		return 5
	default:
		return 1
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("fragments", flag.ContinueOnError)
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := global.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/fragments/config.yaml)")

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return fmt.Errorf("no command given")
	}

	command, cmdArgs := rest[0], rest[1:]
	if command == "init" {
		return ignoreHelp(runInit(cmdArgs, *configPath))
	}

	handler, ok := commands[command]
	if !ok {
		global.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	return ignoreHelp(handler(ctx, a, cmdArgs))
}

// ignoreHelp treats an explicit --help as success.
func ignoreHelp(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

// ============================================================================
// Wiring
// ============================================================================

type app struct {
	cfg      *config.Config
	svc      *service.Service
	metadata metadata.MetadataStore
	content  content.ContentStore
	closers  []io.Closer
	stopMets func()
}

// setup loads configuration and builds the service with its stores,
// limiter and metrics.
func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return nil, err
	}

	contentStore, err := config.CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		return nil, err
	}

	metadataStore, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		_ = contentStore.Close()
		return nil, err
	}

	metricsResult := config.InitializeMetrics(cfg, storeHealth(metadataStore))

	contentStore = metrics.InstrumentContentStore(contentStore, cfg.Content.Type, metricsResult.StoreMetrics)
	metadataStore = metrics.InstrumentMetadataStore(metadataStore, cfg.Metadata.Type, metricsResult.StoreMetrics)

	repo := fragment.NewRepository(metadataStore, contentStore)
	svc := service.New(repo, service.Options{
		Limiter:      config.CreateRateLimiter(&cfg.Server.RateLimit),
		WaitForToken: cfg.Server.RateLimit.Wait,
		Metrics:      metricsResult.FragmentMetrics,
	})

	a := &app{
		cfg:      cfg,
		svc:      svc,
		metadata: metadataStore,
		content:  contentStore,
		closers:  []io.Closer{metadataStore, contentStore},
		stopMets: func() {},
	}

	if metricsResult.Server != nil {
		a.stopMets = startMetricsServer(ctx, metricsResult.Server)
	}

	logger.Debug("Stores ready: content=%s metadata=%s", cfg.Content.Type, cfg.Metadata.Type)
	return a, nil
}

// storeHealth checks the metadata store with a listing under a reserved
// owner that never holds fragments.
func storeHealth(store metadata.MetadataStore) metrics.HealthFunc {
	return func(ctx context.Context) error {
		_, err := store.List(ctx, "_healthz")
		return err
	}
}

// startMetricsServer runs srv in the background and returns a function that
// shuts it down and waits for it to exit.
func startMetricsServer(ctx context.Context, srv *metrics.Server) func() {
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := srv.Start(srvCtx); err != nil {
			logger.Error("Metrics server error: %v", err)
		}
	}()

	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn("Metrics server did not stop within 5s")
		}
	}
}

func (a *app) close() {
	a.stopMets()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close store: %v", err)
		}
	}
	_ = logger.Close()
}

// ============================================================================
// Commands
// ============================================================================

type commandFunc func(ctx context.Context, a *app, args []string) error

var commands = map[string]commandFunc{
	"create": runCreate,
	"list":   runList,
	"info":   runInfo,
	"get":    runGet,
	"update": runUpdate,
	"delete": runDelete,
	"gc":     runGC,
	"serve":  runServe,
}

func runInit(args []string, configPath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		path string
		err  error
	)
	if configPath != "" {
		path, err = config.InitConfigToPath(configPath, *force)
	} else {
		path, err = config.InitConfig(*force)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner id")
	contentType := fs.String("type", "", "Content type (e.g. text/plain)")
	file := fs.String("file", "-", "File to read data from ('-' for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body, err := readInput(*file)
	if err != nil {
		return err
	}

	f, err := a.svc.Create(ctx, *owner, *contentType, body)
	if err != nil {
		return err
	}
	return printJSON(f)
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner id")
	expand := fs.Bool("expand", false, "Include full metadata instead of ids")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listing, err := a.svc.List(ctx, *owner, *expand)
	if err != nil {
		return err
	}

	if listing.Expanded {
		return printJSON(map[string]any{"fragments": nonNil(listing.Fragments)})
	}
	return printJSON(map[string]any{"fragments": nonNil(listing.IDs)})
}

func runInfo(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner id")
	id := fs.String("id", "", "Fragment id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := a.svc.Info(ctx, *owner, *id)
	if err != nil {
		return err
	}
	return printJSON(f)
}

func runGet(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner id")
	id := fs.String("id", "", "Fragment id, optionally with an extension (e.g. <id>.html)")
	as := fs.String("as", "", "Target content type (default: stored type)")
	out := fs.String("out", "-", "File to write data to ('-' for stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		p   *service.Payload
		err error
	)
	if *as == "" {
		p, err = a.svc.ReadByExtension(ctx, *owner, *id)
	} else {
		p, err = a.svc.Read(ctx, *owner, *id, *as)
	}
	if err != nil {
		return err
	}

	logger.Debug("Read %d bytes as %s", len(p.Data), p.ContentType)
	return writeOutput(*out, p.Data)
}

func runUpdate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner id")
	id := fs.String("id", "", "Fragment id")
	contentType := fs.String("type", "", "Content type; must match the fragment's type")
	file := fs.String("file", "-", "File to read data from ('-' for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body, err := readInput(*file)
	if err != nil {
		return err
	}

	f, err := a.svc.Update(ctx, *owner, *id, *contentType, body)
	if err != nil {
		return err
	}
	return printJSON(f)
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner id")
	id := fs.String("id", "", "Fragment id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.svc.Delete(ctx, *owner, *id); err != nil {
		return err
	}
	return printJSON(map[string]string{"status": "ok", "id": *id})
}

// runGC runs one collection pass over the configured stores.
func runGC(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("gc", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", a.cfg.GC.DryRun, "Report orphans without deleting them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gcCfg := a.cfg.GC
	gcCfg.DryRun = *dryRun

	collector, err := config.CreateCollector(&gcCfg, a.metadata, a.content)
	if err != nil {
		return err
	}

	stats, err := collector.RunNow(ctx)
	if err != nil {
		return err
	}

	logger.Info("GC: %s", stats.Summary())
	return printJSON(map[string]any{
		"dry_run":    gcCfg.DryRun,
		"existing":   stats.ExistingCount,
		"referenced": stats.ReferencedCount,
		"orphaned":   stats.OrphanedCount,
		"reclaimed":  stats.ReclaimedCount,
		"deleted":    stats.DeletedCount,
		"failed":     stats.FailedCount,
		"duration":   stats.Duration().String(),
	})
}

// shutdownTimeout bounds how long serve waits for an in-flight collection.
const shutdownTimeout = 10 * time.Second

// runServe keeps the process alive so the periodic collector and the
// metrics endpoint can do their work.
func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return serve(ctx, a)
}

// serve starts the collector, blocks until ctx is cancelled, then stops it.
// The metrics server started by setup is shut down by app.close.
func serve(ctx context.Context, a *app) error {
	collector, err := config.CreateCollector(&a.cfg.GC, a.metadata, a.content)
	if err != nil {
		return err
	}
	collector.Start()

	logger.Info("Serving (content=%s metadata=%s metrics=%v)",
		a.cfg.Content.Type, a.cfg.Metadata.Type, a.cfg.Server.Metrics.Enabled)

	<-ctx.Done()
	logger.Info("Shutting down...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := collector.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop garbage collector: %w", err)
	}
	return nil
}

// ============================================================================
// I/O helpers
// ============================================================================

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nonNil makes empty listings encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
