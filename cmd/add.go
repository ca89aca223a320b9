package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add [url]...",
	Short: "Add downloads to the running ferry server",
	Long:  `Send one or more URLs to a running 'ferry server'. Use --batch to read them from a file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		batchFile, _ := cmd.Flags().GetString("batch")
		output, _ := cmd.Flags().GetString("output")

		urls := append([]string(nil), args...)
		if batchFile != "" {
			fileURLs, err := readURLsFromFile(batchFile)
			if err != nil {
				return fmt.Errorf("error reading batch file: %w", err)
			}
			urls = append(urls, fileURLs...)
		}
		if len(urls) == 0 {
			return cmd.Help()
		}

		port, err := requirePort()
		if err != nil {
			return err
		}

		count := 0
		for _, u := range urls {
			id, err := sendToServer(u, output, port)
			if err != nil {
				fmt.Printf("Error adding %s: %v\n", u, err)
				continue
			}
			fmt.Printf("Added %s (ID: %s)\n", u, id)
			count++
		}
		if count == 0 {
			return fmt.Errorf("no downloads were added")
		}
		fmt.Printf("Successfully added %d of %d downloads.\n", count, len(urls))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	addCmd.Flags().StringP("output", "o", "", "Output directory (default: the server's)")
}
