package main

import "github.com/audiolibrelab/wavrecorder/cmd"

func main() {
	cmd.Execute()
}
