package main

import "github.com/telecarehq/telecare_backend/cmd"

func main() {
	cmd.Execute()
}
