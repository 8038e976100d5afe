package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"thingmirror/pkg/checkpoint"
	"thingmirror/pkg/storage"
	"thingmirror/pkg/ui"
)

var (
	statusOutput  string
	statusBackend string
	historyLimit  int
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the checkpoint of an output directory",
	Long: `Show where the next mirror run will start, whether a run currently holds
the output directory, and, for the sqlite backend, recent checkpoint history.`,
	Example: `  thingmirror status
  thingmirror status --checkpoint sqlite --history 20`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "", "output directory")
	statusCmd.Flags().StringVar(&statusBackend, "checkpoint", "", "checkpoint backend: file or sqlite")
	statusCmd.Flags().IntVar(&historyLimit, "history", 0, "show this many past checkpoints (sqlite only)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if statusOutput != "" {
		flags["output"] = statusOutput
	}
	if statusBackend != "" {
		flags["checkpoint"] = statusBackend
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	out := printer.Writer()

	printer.Section("Mirror status")
	rows := [][]string{
		{"Output", cfg.Mirror.Output},
		{"Backend", cfg.Checkpoint.Backend},
	}

	if _, err := os.Stat(cfg.Mirror.Output); errors.Is(err, fs.ErrNotExist) {
		rows = append(rows, []string{"Checkpoint", "none (output directory missing)"})
		fmt.Fprintln(out, ui.RenderTable([]string{"Field", "Value"}, rows, nil))
		return nil
	}

	rows = append(rows, []string{"Run in progress", runInProgress(cfg.Mirror.Output)})

	path, err := checkpoint.Location(cfg)
	if err != nil {
		return err
	}
	rows = append(rows, []string{"Checkpoint file", path})

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		rows = append(rows, []string{"Checkpoint", "none"}, []string{"Next start", strconv.FormatUint(checkpoint.DefaultStart, 10)})
		fmt.Fprintln(out, ui.RenderTable([]string{"Field", "Value"}, rows, nil))
		return nil
	}

	store, err := checkpoint.Open(cfg, "status")
	if err != nil {
		return err
	}
	defer store.Close()

	start, origin, err := checkpoint.ResolveStart(cmd.Context(), store, 0)
	if err != nil {
		return err
	}
	rows = append(rows, []string{"Next start", fmt.Sprintf("%d (%s)", start, origin)})
	fmt.Fprintln(out, ui.RenderTable([]string{"Field", "Value"}, rows, nil))

	if historyLimit <= 0 {
		return nil
	}
	history, ok := store.(checkpoint.HistoryStore)
	if !ok {
		printer.Warning("The file backend keeps no history; use --checkpoint sqlite")
		return nil
	}

	entries, err := history.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	historyRows := make([][]string, 0, len(entries))
	for _, e := range entries {
		historyRows = append(historyRows, []string{
			strconv.FormatUint(e.Index, 10),
			e.SavedAt.Local().Format(time.DateTime),
			e.RunID,
		})
	}
	fmt.Fprintln(out)
	printer.Section("Checkpoint history")
	fmt.Fprintln(out, ui.RenderTable([]string{"Index", "Saved", "Run"}, historyRows, []ui.Align{ui.AlignRight}))
	return nil
}

// runInProgress probes the output lock without keeping it
func runInProgress(root string) string {
	lock, err := storage.AcquireLock(root)
	if errors.Is(err, storage.ErrLocked) {
		return "yes"
	}
	if err != nil {
		return "unknown"
	}
	_ = lock.Release()
	return "no"
}
