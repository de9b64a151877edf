package main

import (
	"os"

	"github.com/sheerbytes/thrudrop/internal/termio"
)

func main() {
	termio.Init()
	err := newRootCmd().Execute()
	termio.Flush()
	if err != nil {
		os.Exit(1)
	}
}
