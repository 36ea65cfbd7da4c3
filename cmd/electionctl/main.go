package main

import "guildhall/cmd/electionctl/cmd"

func main() {
	cmd.Execute()
}
