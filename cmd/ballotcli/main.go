package main

import "go.vocdoni.io/zkballot/cmd/ballotcli/commands"

func main() {
	commands.Execute()
}
