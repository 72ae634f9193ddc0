// Command gowasm runs a WebAssembly module's exported function against
// the gowasm interpreter core, grounded on the teacher's cmd/wazero/
// wazero.go doMain/flag.CommandLine separation for testability.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/vm"
	"github.com/akiomik-go/gowasm/internal/wasi"
	"github.com/akiomik-go/gowasm/internal/wasm/binary"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("gowasm", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")

	var wasiEnabled bool
	flags.BoolVar(&wasiEnabled, "wasi", false, "Link the wasi_snapshot_preview1 host functions.")

	var maxSteps uint64
	flags.Uint64Var(&maxSteps, "max-steps", 0, "Stop with an internal error after this many dispatched instructions (0 means unbounded).")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if help || flags.NArg() < 2 {
		printUsage(stderr, flags)
		return 0
	}

	wasmPath := flags.Arg(0)
	exportName := flags.Arg(1)
	callArgs := flags.Args()[2:]

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		fmt.Fprintf(stderr, "error reading wasm binary: %v\n", err)
		return 1
	}

	mod, err := binary.DecodeModule(bytes.NewReader(wasmBytes))
	if err != nil {
		fmt.Fprintf(stderr, "error decoding wasm binary: %v\n", err)
		return 1
	}

	var hostImports []vm.HostImport
	if wasiEnabled {
		hostImports = wasi.HostImports(&wasi.FileTable{Stdin: os.Stdin, Stdout: stdout, Stderr: stderr})
	}

	store, err := vm.Instantiate(mod, hostImports)
	if err != nil {
		fmt.Fprintf(stderr, "error instantiating module: %v\n", err)
		return 1
	}

	params, err := parseArgs(callArgs)
	if err != nil {
		fmt.Fprintf(stderr, "error parsing call arguments: %v\n", err)
		return 1
	}

	cfg := vm.NewRuntimeConfig().WithMaxSteps(maxSteps)
	interp := vm.NewInterpreterWithConfig(store, cfg)

	results, err := interp.InvokeAll(exportName, params)
	if err != nil {
		var exit *vm.ExitError
		if errors.As(err, &exit) {
			return int(exit.Code)
		}
		fmt.Fprintf(stderr, "error invoking %q: %v\n", exportName, err)
		return 1
	}

	for _, r := range results {
		fmt.Fprintln(stdout, r)
	}
	return 0
}

// parseArgs interprets each command-line argument as a raw i32, storing
// it on the operand stack the way the interpreter's numeric opcodes
// would (spec.md §3's uint64-tagged operand stack).
func parseArgs(args []string) ([]uint64, error) {
	out := make([]uint64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", a, err)
		}
		out = append(out, api.EncodeI32(int32(v)))
	}
	return out, nil
}

func printUsage(stderr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stderr, "gowasm [flags] <wasm-file> <export-name> [i32-args...]")
	flags.PrintDefaults()
}
