// Command codeframe runs the CodeFRAME orchestration server.
package main

import (
	"os"

	"github.com/frankbria/codeframe/cmd/codeframe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
