package main

import "github.com/mihaisavezi/claude-code-open/cmd"

func main() {
	cmd.Execute()
}
