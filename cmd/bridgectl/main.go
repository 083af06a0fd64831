package main

import (
	"os"

	"github.com/elliotttate/RenderDocMCP/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
