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

//go:build debug

// Package debug includes debugging helpers for the interpreter and loader.
//
// Everything in this file only exists when the binary is built with the
// "debug" build tag; see debug_off.go for the production no-op stand-ins.
package debug

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/timandy/routine"
)

// Enabled is true when the runtime is built with the debug tag, which turns
// on opcode tracing, arena logging, and internal assertions.
const Enabled = true

var debugPattern *regexp.Regexp

func init() {
	flag.Func("swamp.filter", "regexp to filter debug logs by", func(s string) (err error) {
		debugPattern, err = regexp.Compile(s)
		return err
	})
}

// Log prints a trace line to stderr, tagged with the calling package, file,
// line, and goroutine id.
//
// context is an optional leading (format, args...) pair rendered before
// operation, used to identify which run or arena a trace line belongs to.
func Log(context []any, operation string, format string, args ...any) {
	skip := 1
again:
	pc, file, line, _ := runtime.Caller(skip)

	fn := runtime.FuncForPC(pc)
	name := fn.Name()
	name = name[strings.LastIndex(name, ".")+1:]
	if strings.HasPrefix(name, "log") || strings.Contains(name, "Log") {
		skip++
		goto again
	}

	pkg := fn.Name()
	pkg = strings.TrimPrefix(pkg, "swamp.run/runtime/internal/")
	if idx := strings.Index(pkg, "."); idx >= 0 {
		pkg = pkg[:idx]
	}

	file = filepath.Base(file)

	buf := new(strings.Builder)
	fmt.Fprintf(buf, "%s/%s:%d [g%04d", pkg, file, line, routine.Goid())
	if len(context) >= 1 {
		fmt.Fprintf(buf, ", "+context[0].(string), context[1:]...)
	}
	fmt.Fprintf(buf, "] %s: ", operation)
	fmt.Fprintf(buf, format, args...)

	if debugPattern != nil && !debugPattern.MatchString(buf.String()) {
		return
	}

	buf.WriteByte('\n')
	os.Stderr.WriteString(buf.String())
}

// Assert panics if cond is false. Only compiled in when debug tracing is on;
// production builds trust the loader and interpreter's own fault checks
// instead of paying for assertions on every opcode.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("swamp: internal assertion failed: "+format, args...))
	}
}
