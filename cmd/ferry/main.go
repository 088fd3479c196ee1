package main

import (
	"os"

	"github.com/Ning0612/ferry/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
