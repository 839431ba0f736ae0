package main

import (
	"github.com/asad/accountd/internal/cli"
)

// main hands control to the CLI package.
func main() {
	cli.Execute()
}
