package main

import "github.com/surge-downloader/ferry/cmd"

func main() {
	cmd.Execute()
}
