// Command avm1dump decodes an AVM1 bytecode file and prints it as JSON:
// the raw action stream by default, or the reconstructed control-flow graph
// with -cfg.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/open-flash/avm1"
	"github.com/open-flash/avm1/raw"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("avm1dump", flag.ContinueOnError)
	flags.SetOutput(stdErr)
	dumpCfg := flags.Bool("cfg", false, "Print the control-flow graph instead of the raw action stream.")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(stdErr, "usage: avm1dump [-cfg] path")
		return 1
	}

	input, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}

	var out []byte
	if *dumpCfg {
		out, err = json.MarshalIndent(avm1.ParseCfg(input), "", "  ")
	} else {
		out, err = marshalActionStream(input)
	}
	if err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	fmt.Fprintf(stdOut, "%s\n", out)
	return 0
}

func marshalActionStream(input []byte) ([]byte, error) {
	actions, err := avm1.ParseAllActions(input)
	if err != nil {
		return nil, err
	}
	encoded := make([]json.RawMessage, len(actions))
	for i, a := range actions {
		m, err := raw.MarshalAction(a)
		if err != nil {
			return nil, err
		}
		encoded[i] = m
	}
	return json.MarshalIndent(encoded, "", "  ")
}
