// Command cortex runs the cognitive-AI backend's process entrypoints:
// the chat HTTP surface, the reflection worker, the nightly distillation
// scheduler, and database migrations.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
