package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rvoll/timelinehub/internal/core/bus"
	"github.com/rvoll/timelinehub/internal/util"
)

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Re-render the merged timeline whenever a feed changes",
	Long: `follow keeps the merged timeline up to date: it subscribes to the
providers' change notifications and reloads whenever a feed file is written,
created, or removed. Interrupt with Ctrl+C.`,
	RunE: runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	h, uri, err := setup(true)
	if err != nil {
		return err
	}
	defer h.Close()

	ctx := cmd.Context()
	util.LogInfof("following %s with providers: %s", uri, sourceIDs(h.ListSources()))

	if err := loadAll(ctx, h, uri); err != nil {
		return err
	}
	if err := render(h, uri); err != nil {
		return err
	}

	// Provider-originated notifications only say "something changed"; the
	// reload below refetches from scratch, honoring the reset hint
	// implicitly by starting at page one.
	changed := make(chan bus.ContentEvent, 16)
	sub := h.OnTimelineChange(func(ev bus.ContentEvent) {
		// An empty URI means "whatever resource is in focus", which here
		// is the followed feed directory.
		if ev.URI == "" || ev.URI == uri {
			select {
			case changed <- ev:
			default:
			}
		}
	})
	defer sub.Cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Bursts of filesystem events collapse into one reload.
	var pending bool
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-stop:
			fmt.Println()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
			pending = true
			debounce.Reset(200 * time.Millisecond)
		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			if err := loadAll(ctx, h, uri); err != nil {
				util.LogWarnf("reload failed: %v", err)
				continue
			}
			fmt.Printf("\n[%s]\n", time.Now().Format("15:04:05"))
			if err := render(h, uri); err != nil {
				return err
			}
		}
	}
}
