// The main package for the campharvest executable.
package main

import (
	"github.com/JakeFAU/camp-harvester/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
