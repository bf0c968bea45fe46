package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
)

// printMarkdown renders markdown for the terminal when stdout is a TTY, and
// prints it raw otherwise so the output stays pipe-friendly.
func printMarkdown(md string) {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Print(md)
		return
	}
	out, err := glamour.Render(md, "auto")
	if err != nil {
		// fall back on the raw markdown
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
