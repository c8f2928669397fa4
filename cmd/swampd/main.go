// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// swampd loads a compiled Swamp package (local file or ssh://host/path) and
// runs its entry function against caller-supplied argument bytes.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"swamp.run/runtime/internal/config"
	"swamp.run/runtime/internal/host"
	"swamp.run/runtime/internal/loader"
	"swamp.run/runtime/internal/transport"
	"swamp.run/runtime/internal/vm"
)

func main() {
	configPath := flag.String("config", "", "path to a swampd.yaml config file; defaults are used if omitted")
	argsHex := flag.String("args", "", "hex-encoded argument bytes to place just after the entry function's return slot")
	dump := flag.Bool("dump", false, "print package metadata instead of running it")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: swampd [-config file] [-args hex] [-dump] <package-path-or-ssh-url>")
		os.Exit(2)
	}
	source := flag.Arg(0)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	runID := host.NewRunID()

	data, err := transport.Fetch(source, cfg.SSH)
	if err != nil {
		host.LogLoadFailure(runID, source, err)
		os.Exit(1)
	}

	registry := host.NewRegistry(host.Builtins())
	pkg, err := loader.Load(data, registry.Value(), registry.Resolve)
	if err != nil {
		host.LogLoadFailure(runID, source, err)
		os.Exit(1)
	}

	if *dump {
		entries, err := pkg.DumpEntries()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("package %s checksum=%x types=%d ledger_entries=%d\n", runID, pkg.Checksum, len(pkg.Types.Types), len(entries))
		if len(pkg.ResourceNames) > 0 {
			fmt.Printf("resource names: %v\n", pkg.ResourceNames)
		}
		if len(pkg.DebugFiles) > 0 {
			fmt.Printf("debug info files: %v\n", pkg.DebugFiles)
		}
		return
	}

	args, err := hex.DecodeString(*argsHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swampd: decoding -args: %v\n", err)
		os.Exit(1)
	}

	ctx := vm.NewContext(pkg.Static, pkg.Types, registry.Value(), cfg.StackSize, cfg.DynamicCapacity)
	fn := pkg.EntryFunc()

	result, err := vm.Run(ctx, fn, args)
	if err != nil {
		host.LogRunFailure(runID, "main", err)
		for _, f := range ctx.StackTrace() {
			fmt.Fprintf(os.Stderr, "  at %s:%d\n", f.Func, f.Line)
		}
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(result))
}
