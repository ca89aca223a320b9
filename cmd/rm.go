package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/ferry/internal/state"
)

var rmCmd = &cobra.Command{
	Use:   "rm <ID>",
	Short: "Remove a download",
	Long: `Remove a download by its ID. A running server cancels it first; without
one the record is removed from the session store. Use --clean to remove all
completed downloads.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clean, _ := cmd.Flags().GetBool("clean")

		if clean {
			count, err := state.RemoveCompletedSessions()
			if err != nil {
				return fmt.Errorf("error cleaning downloads: %w", err)
			}
			fmt.Printf("Removed %d completed downloads.\n", count)
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("provide a download ID or use --clean")
		}

		id, err := resolveDownloadID(args[0])
		if err != nil {
			return err
		}

		if port := readActivePort(); port > 0 {
			if err := postAction(port, "delete", id); err != nil {
				return err
			}
			fmt.Printf("Removed download %s\n", shortID(id))
			return nil
		}

		if err := state.RemoveSession(id); err != nil {
			return fmt.Errorf("error removing download: %w", err)
		}
		fmt.Printf("Removed download %s (offline mode)\n", shortID(id))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().Bool("clean", false, "Remove all completed downloads")
}
