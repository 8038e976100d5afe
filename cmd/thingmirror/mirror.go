package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"thingmirror/internal/coordinator"
	"thingmirror/internal/workerpool"
	"thingmirror/pkg/auth"
	"thingmirror/pkg/checkpoint"
	"thingmirror/pkg/config"
	"thingmirror/pkg/logger"
	"thingmirror/pkg/mirror"
	"thingmirror/pkg/ratelimit"
	"thingmirror/pkg/retry"
	"thingmirror/pkg/storage"
	"thingmirror/pkg/thingiverse"
	"thingmirror/pkg/ui"
)

var (
	// Mirror command flags
	tokenFlag      string
	baseURLFlag    string
	outputDir      string
	workers        int
	startIndex     uint64
	endIndex       uint64
	maxAttempts    int
	backoffName    string
	checkpointName string
	profileName    string
	progressEvery  time.Duration
	notifyOnFinish bool
)

// mirrorCmd represents the mirror command
var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror things starting at the checkpoint or --start",
	Long: `Mirror Thingiverse things in ascending id order.

The first id is taken from --start, then from the stored checkpoint, then
defaults to 1. Things that are missing, private or already on disk are
skipped. Each thing is retried up to --max-attempts times; a thing that
still fails stops the whole run so it can be investigated and resumed.

An API token is required. It is read from --token, THINGMIRROR_TOKEN, the
config file, or the credential store ('thingmirror auth login').

Press Ctrl+C to stop; the checkpoint always reflects completed work.`,
	Example: `  # Resume from the checkpoint in ./content
  thingmirror mirror

  # Mirror a fixed range with eight workers
  thingmirror mirror --start 1000 --end 2000 --workers 8 -v

  # Keep checkpoint history in SQLite
  thingmirror mirror --checkpoint sqlite --output /srv/mirror`,
	Args: cobra.NoArgs,
	RunE: runMirror,
}

func init() {
	rootCmd.AddCommand(mirrorCmd)

	f := mirrorCmd.Flags()
	f.StringVar(&tokenFlag, "token", "", "Thingiverse API token")
	f.StringVar(&baseURLFlag, "base-url", "", "API base URL")
	f.StringVarP(&outputDir, "output", "o", "", "output directory (default \"content\")")
	f.IntVarP(&workers, "workers", "w", 0, "number of concurrent workers (default 4)")
	f.Uint64Var(&startIndex, "start", 0, "first thing id, overriding the checkpoint")
	f.Uint64Var(&endIndex, "end", 0, "last thing id to mirror (0 means no limit)")
	f.IntVar(&maxAttempts, "max-attempts", 0, "attempts per thing before the run stops (default 3)")
	f.StringVar(&backoffName, "backoff", "", "delay between attempts: none, constant or exponential")
	f.StringVar(&checkpointName, "checkpoint", "", "checkpoint backend: file or sqlite")
	f.StringVar(&profileName, "profile", auth.DefaultProfile, "stored credential profile to use")
	f.DurationVar(&progressEvery, "progress", 30*time.Second, "progress line interval (0 disables)")
	f.BoolVar(&notifyOnFinish, "notify", false, "send a desktop notification when the run ends")
}

// mirrorFlags returns the flags the user set explicitly
func mirrorFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed

	if changed("token") {
		flags["token"] = tokenFlag
	}
	if changed("base-url") {
		flags["base-url"] = baseURLFlag
	}
	if changed("output") {
		flags["output"] = outputDir
	}
	if changed("workers") {
		flags["workers"] = workers
	}
	if changed("start") {
		flags["start"] = startIndex
	}
	if changed("end") {
		flags["end"] = endIndex
	}
	if changed("max-attempts") {
		flags["max-attempts"] = maxAttempts
	}
	if changed("backoff") {
		flags["backoff"] = backoffName
	}
	if changed("checkpoint") {
		flags["checkpoint"] = checkpointName
	}
	return flags
}

// resolveToken falls back to the credential store when no token was
// configured.
func resolveToken(cfg *config.Config, log logger.Logger) (string, error) {
	if cfg.API.Token != "" {
		return cfg.API.Token, nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("credential store unavailable")
		return "", errors.New("no API token configured")
	}
	cred, err := manager.Retrieve(profileName)
	if err != nil {
		return "", fmt.Errorf("no API token configured: run 'thingmirror auth login' or pass --token")
	}
	log.InfoWithFields("using stored token", map[string]interface{}{
		"profile": cred.Profile,
		"source":  cred.Source,
	})
	return cred.Token, nil
}

func runMirror(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(mirrorFlags(cmd))
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := logger.GetLogger().WithField("run_id", runID)
	printer := ui.NewPrinter(cmd.OutOrStdout())

	token, err := resolveToken(cfg, log)
	if err != nil {
		auth.ShowTokenGuide(cmd.ErrOrStderr())
		return err
	}

	store, err := storage.NewManager(cfg.Mirror.Output)
	if err != nil {
		return err
	}
	lock, err := storage.AcquireLock(store.Root())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.WithError(err).Warn("failed to release output lock")
		}
	}()

	removed, err := store.CleanStaging()
	if err != nil {
		return err
	}
	if removed > 0 {
		log.InfoWithFields("removed unfinished things from an earlier run", map[string]interface{}{
			"count": removed,
		})
	}

	cp, err := checkpoint.Open(cfg, runID)
	if err != nil {
		return err
	}
	defer cp.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start, origin, err := checkpoint.ResolveStart(ctx, cp, cfg.Mirror.Start)
	if err != nil {
		return err
	}

	backoff, err := retry.ParseBackoff(cfg.Mirror.Backoff)
	if err != nil {
		return err
	}

	limiter, err := ratelimit.PerMinute(cfg.API.RateLimiter, cfg.API.RequestsPerMinute)
	if err != nil {
		return err
	}

	client := thingiverse.NewClient(thingiverse.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Token:   token,
		Timeout: cfg.API.Timeout.Duration,
	}, limiter, log)

	mirrorer := mirror.New(client, store, log, mirror.Options{End: cfg.Mirror.End})
	coord := coordinator.New[workerpool.Outcome](start)
	pool := workerpool.New(workerpool.Config{
		Workers:     cfg.Mirror.Workers,
		MaxAttempts: cfg.Mirror.MaxAttempts,
		Backoff:     backoff,
		RetryIf:     retry.APIRetryIf,
	}, coord, mirrorer.Unit(), checkpoint.LoggingSink{Store: cp, Logger: log}, log)

	printer.Info("Output", store.Root())
	printer.Info("Start", fmt.Sprintf("%d (%s)", start, origin))
	if cfg.Mirror.End > 0 {
		printer.Info("End", strconv.FormatUint(cfg.Mirror.End, 10))
	}
	printer.Info("Workers", strconv.Itoa(cfg.Mirror.Workers))

	log.InfoWithFields("mirror starting", map[string]interface{}{
		"start":      start,
		"origin":     string(origin),
		"end":        cfg.Mirror.End,
		"workers":    cfg.Mirror.Workers,
		"checkpoint": cfg.Checkpoint.Backend,
		"version":    version,
	})

	var wg sync.WaitGroup
	progressCtx, stopProgress := context.WithCancel(ctx)
	if progressEvery > 0 {
		progress := ui.NewProgress(printer, progressEvery, func() ui.Snapshot {
			return snapshot(mirrorer, pool, coord, start)
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			progress.Run(progressCtx)
		}()
	}

	began := time.Now()
	runErr := pool.Run(ctx)
	stopProgress()
	wg.Wait()

	printSummary(printer, snapshot(mirrorer, pool, coord, start), pool.InFlight(), time.Since(began))

	interrupted := runErr != nil && ctx.Err() != nil && errors.Is(runErr, context.Canceled)
	notify(log, runErr, interrupted)

	switch {
	case runErr == nil:
		printer.Success("Mirror finished")
		return nil
	case interrupted:
		printer.Warning("Interrupted; the next run resumes from the checkpoint")
		return nil
	default:
		log.WithError(runErr).Error("mirror failed")
		if thingiverse.IsUnauthorized(runErr) {
			printer.Warning("The API token was rejected. Run 'thingmirror auth login' to store a new one")
		}
		return runErr
	}
}

func snapshot(m *mirror.Mirrorer, pool *workerpool.Pool, coord *coordinator.Coordinator[workerpool.Outcome], start uint64) ui.Snapshot {
	ms := m.Stats()
	ps := pool.Stats()
	var visited uint64
	if next := coord.Next(); next > start {
		visited = next - start
	}
	return ui.Snapshot{
		Things:        ms.Things,
		Files:         ms.Files,
		Bytes:         ms.Bytes,
		Visited:       visited,
		LastCommitted: ps.LastCommitted,
		HasCommitted:  ps.HasCommitted,
	}
}

func printSummary(p *ui.Printer, s ui.Snapshot, inFlight []uint64, elapsed time.Duration) {
	checkpointValue := "unchanged"
	if s.HasCommitted {
		checkpointValue = strconv.FormatUint(s.LastCommitted, 10)
	}

	rows := [][]string{
		{"Things mirrored", strconv.FormatInt(s.Things, 10)},
		{"Files", strconv.FormatInt(s.Files, 10)},
		{"Downloaded", ui.FormatBytes(s.Bytes)},
		{"Ids visited", strconv.FormatUint(s.Visited, 10)},
		{"Checkpoint", checkpointValue},
		{"Elapsed", elapsed.Round(time.Second).String()},
	}
	if len(inFlight) > 0 {
		rows = append(rows, []string{"Unfinished ids", fmt.Sprint(inFlight)})
	}

	fmt.Fprintln(p.Writer())
	p.Section("Summary")
	fmt.Fprintln(p.Writer(), ui.RenderTable([]string{"Metric", "Value"}, rows, []ui.Align{ui.AlignLeft, ui.AlignRight}))
}

func notify(log logger.Logger, runErr error, interrupted bool) {
	if !notifyOnFinish {
		return
	}
	message := "Mirror finished"
	switch {
	case interrupted:
		message = "Mirror interrupted"
	case runErr != nil:
		message = "Mirror failed: " + runErr.Error()
	}
	if err := ui.NewNotifier().Notify("thingmirror", message); err != nil {
		log.WithError(err).Debug("desktop notification failed")
	}
}
