package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/fitclass/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fitclass: %v\n", err)
		os.Exit(1)
	}
}
