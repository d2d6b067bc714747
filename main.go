package main

import "github.com/fakeyudi/motionwatch/cmd"

func main() {
	cmd.Execute()
}
