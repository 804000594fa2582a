// Command osimctl drives OpenSim tools: weight tuning, input bundling,
// output archiving and experiment setup. See cmd/root.go for the commands.
package main

import (
	"github.com/gaitlab/osimctl/cmd"
)

func main() {
	cmd.Execute()
}
