// Command promptmill generates image prompts with Gemini and renders them
// through the imageFX command line tool.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/promptmill/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
