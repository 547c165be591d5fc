// Command prism runs the code review agent runtime.
package main

import (
	"fmt"
	"os"

	"github.com/prismrun/prism/cmd/prism/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
