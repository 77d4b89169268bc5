package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rvoll/timelinehub/internal/application/hub"
	"github.com/rvoll/timelinehub/internal/core/model"
	"github.com/rvoll/timelinehub/internal/data/jsonfeed"
	"github.com/rvoll/timelinehub/internal/presentation/formatter"
	"github.com/rvoll/timelinehub/internal/util"
)

var (
	// Logging related
	debug   bool
	logFile string

	// Data path
	feedDir string

	// Output related
	outputFormat string
	timezone     string

	// Pagination
	pages    int
	pageSize int

	rootCmd = &cobra.Command{
		Use:   "timelinehub [flags]",
		Short: "Merged timeline view over JSONL activity feeds",
		Long: `timelinehub aggregates chronological activity entries from pluggable
providers into one time-ordered view.

This command registers the built-in JSONL feed provider against a directory of
*.jsonl activity feeds, pages the merged timeline, and prints it.

Examples:
  timelinehub --dir ./feeds                      # Print the merged timeline
  timelinehub --dir ./feeds --output json        # JSON output
  timelinehub --dir ./feeds --pages 2            # Stop after two pages per provider
  timelinehub follow --dir ./feeds               # Keep re-rendering on feed changes`,
		RunE: runShow,
	}
)

const defaultLogFile = "~/.timelinehub/logs/app.log"

func init() {
	rootCmd.PersistentFlags().StringVar(&feedDir, "dir", ".",
		"Directory containing *.jsonl activity feeds")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table",
		"Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "Local",
		"Timezone for displayed timestamps (e.g., Asia/Shanghai, UTC)")
	rootCmd.PersistentFlags().IntVar(&pages, "pages", 0,
		"Maximum pages to fetch per provider (0 = until exhausted)")
	rootCmd.PersistentFlags().IntVar(&pageSize, "page-size", 0,
		"Items per page (0 = default)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", defaultLogFile,
		"Log file path")
}

func runShow(cmd *cobra.Command, args []string) error {
	h, uri, err := setup(false)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := loadAll(cmd.Context(), h, uri); err != nil {
		return err
	}
	return render(h, uri)
}

// setup initializes logging and the hub, and registers the feed provider
// for the configured directory.
func setup(watch bool) (*hub.Hub, string, error) {
	logLevel := "info"
	if debug {
		logLevel = "debug"
	}

	path := expandPath(logFile)
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := util.InitLogger(logLevel, path, debug); err != nil {
		return nil, "", err
	}
	if err := util.InitializeTimeProvider(timezone); err != nil {
		return nil, "", err
	}

	dir := expandPath(feedDir)
	if _, err := os.Stat(dir); err != nil {
		return nil, "", fmt.Errorf("feed directory %s: %w", dir, err)
	}

	var hubOpts []hub.Option
	if pageSize > 0 {
		hubOpts = append(hubOpts, hub.WithPageSize(pageSize))
	}
	h := hub.New(hubOpts...)

	provider := jsonfeed.New()
	if watch {
		if err := provider.Watch(dir); err != nil {
			return nil, "", err
		}
	}
	h.RegisterProvider(provider)

	uri := "file://" + dir
	return h, uri, nil
}

// loadAll pages every matching provider until exhaustion or the configured
// page cap, pull-based: another page is requested only while the provider
// still reports more.
func loadAll(ctx context.Context, h *hub.Hub, uri string) error {
	for _, src := range h.ListSources() {
		for n := 0; pages == 0 || n < pages; n++ {
			snap, err := h.LoadPage(ctx, src.ID, uri, n == 0)
			if err != nil {
				return fmt.Errorf("fetching page from %s: %w", src.ID, err)
			}
			if snap == nil || !snap.HasMore {
				break
			}
		}
	}
	return nil
}

func render(h *hub.Hub, uri string) error {
	items, hasMore := h.Timeline(uri)
	view := formatter.View{URI: uri, Items: items, HasMore: hasMore}

	var f formatter.Formatter
	switch outputFormat {
	case "table":
		f = formatter.NewTableFormatter(os.Stdout)
	case "json":
		f = formatter.NewJSONFormatter(os.Stdout)
	default:
		return fmt.Errorf("unknown output format: %s", outputFormat)
	}
	return f.Format(view)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// sourceIDs is a debug helper for log lines.
func sourceIDs(sources []model.SourceInfo) string {
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.ID
	}
	return strings.Join(ids, ",")
}
