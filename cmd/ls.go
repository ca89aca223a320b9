package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/ferry/internal/state"
)

const watchInterval = 2 * time.Second

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List downloads",
	Long:  `List every download recorded in the session store, newest first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")

		if !watch {
			return printSessions(os.Stdout, jsonOutput)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			// Clear screen
			fmt.Print("\033[H\033[2J")
			if err := printSessions(os.Stdout, jsonOutput); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	},
}

func printSessions(w io.Writer, jsonOutput bool) error {
	sessions, err := state.ListSessions()
	if err != nil {
		return fmt.Errorf("error listing downloads: %w", err)
	}

	if jsonOutput {
		if sessions == nil {
			sessions = []state.Session{}
		}
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if len(sessions) == 0 {
		fmt.Fprintln(w, "No downloads found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tSTATUS\tPROGRESS\tSIZE\tUPDATED")
	fmt.Fprintln(tw, "--\t--------\t------\t--------\t----\t-------")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(s.ID),
			truncate(s.Filename, 30),
			s.Status,
			sessionProgress(s),
			sessionSize(s.TotalSize),
			humanize.Time(time.Unix(s.UpdatedAt, 0)))
	}
	return tw.Flush()
}

func sessionProgress(s state.Session) string {
	if s.Status == state.StatusCompleted {
		return "100.0%"
	}
	if s.TotalSize <= 0 {
		if s.ResumeOffset > 0 {
			return humanize.IBytes(s.ResumeOffset)
		}
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(s.ResumeOffset)*100/float64(s.TotalSize))
}

func sessionSize(total int64) string {
	if total < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(total))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Bool("json", false, "Output in JSON format")
	lsCmd.Flags().Bool("watch", false, "Refresh every 2 seconds")
}
