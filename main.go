package main

import (
	"os"

	"omni/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
