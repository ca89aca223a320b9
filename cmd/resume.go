package cmd

var resumeCmd = actionCommand("resume", "Resume a paused or failed download", "resume", "Resumed")

func init() {
	rootCmd.AddCommand(resumeCmd)
}
