// Command cauchyvm runs a single encoded program against an isolated,
// on-disk-free store and reports the resulting performance -- a bench
// harness for the actor interpreter, independent of the rest of the node.
package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/cauchynet/cauchy/core"
	"github.com/cauchynet/cauchy/storage/database"
	"github.com/cauchynet/cauchy/vm"
)

var programFlag = cli.StringFlag{
	Name:  "program",
	Usage: "path to an encoded program (vm.EncodeProgram output)",
}

// noLoader resolves no further transactions: a program run through this
// harness is always the root and only actor, so any send it issues is
// reported in the performance summary but never spawns a child.
type noLoader struct{}

func (noLoader) LookupTx(id []byte) (*core.Transaction, bool, error) { return nil, false, nil }

func main() {
	app := cli.NewApp()
	app.Name = "cauchyvm"
	app.Usage = "run a single program through the actor interpreter"
	app.Flags = []cli.Flag{programFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	path := c.String(programFlag.Name)
	if path == "" {
		return cli.NewExitError("missing -program", 1)
	}

	binary, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := vm.DecodeProgram(binary); err != nil {
		return fmt.Errorf("decode program: %w", err)
	}

	tx := core.NewTransaction(0, nil, binary)
	store := database.NewMemoryStore()
	runtime := vm.NewRuntime(store, noLoader{})

	perf, err := runtime.RunTransaction(tx)
	if err != nil {
		return fmt.Errorf("run transaction: %w", err)
	}

	out, err := json.MarshalIndent(perf.Acts(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
