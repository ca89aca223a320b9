package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// actionCommand builds a subcommand that forwards one session action to
// the running server
func actionCommand(use, short, action, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <ID>",
		Short: short,
		Long:  short + ". The ID may be shortened to any unique prefix.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := requirePort()
			if err != nil {
				return err
			}
			id, err := resolveDownloadID(args[0])
			if err != nil {
				return err
			}
			if err := postAction(port, action, id); err != nil {
				return err
			}
			fmt.Printf("%s download %s\n", done, shortID(id))
			return nil
		},
	}
}

var pauseCmd = actionCommand("pause", "Pause a running download", "pause", "Paused")

func init() {
	rootCmd.AddCommand(pauseCmd)
}
