// The main package for the imgscout executable.
package main

import (
	"github.com/JakeFAU/imgscout/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
