package main

import "Hephaestus/client/hephaestus-cli/cmd"

func main() {
	cmd.Execute()
}
