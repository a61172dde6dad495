package main

import "github.com/agentic-research/figport/cmd"

func main() {
	cmd.Execute()
}
