// Command bookqa is the entry point for the book Q&A backend. It provides
// a Cobra CLI with an HTTP serving mode plus corpus ingestion and pipeline
// validation commands.
package main

import (
	"fmt"
	"os"

	"github.com/roboverse/bookqa-go/cmd/bookqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
