package main

import (
	"os"

	"github.com/arthur-debert/modman/cmd/modman"
)

func main() {
	os.Exit(modman.Execute())
}
