package cmd

var cancelCmd = actionCommand("cancel", "Cancel a download and discard its partial file", "cancel", "Canceled")

func init() {
	rootCmd.AddCommand(cancelCmd)
}
