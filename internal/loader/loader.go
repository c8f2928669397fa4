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

// Package loader turns a RAFF-encoded package file into a ready-to-run
// Package: the decoded type table, the fixed-up static memory image, and
// the resolved entry function.
package loader

import (
	"fmt"

	"github.com/tiendc/go-deepcopy"
	"golang.org/x/crypto/blake2b"

	"swamp.run/runtime/internal/arena"
	"swamp.run/runtime/internal/debug"
	"swamp.run/runtime/internal/fixup"
	"swamp.run/runtime/internal/raff"
	"swamp.run/runtime/internal/typeinfo"
	"swamp.run/runtime/internal/value"
)

// Package is a loaded, fixed-up Swamp package, ready to be run by one or
// more execution contexts sharing its static memory.
type Package struct {
	Types  *typeinfo.Table
	Static *arena.Static
	Entry  value.Ref

	// Checksum is a blake2b-256 digest of the package's dynamic-memory
	// image, computed at load time so callers can verify a cached or
	// transferred package file against what it was loaded from without
	// re-reading the source bytes.
	Checksum [32]byte

	// ResourceNames is the package's decoded resource-name table (ledger
	// kind 5), nil if the package carries none.
	ResourceNames []string

	// DebugFiles is the package's decoded debug-info source filename table
	// (ledger kind 7), nil if the package carries none.
	DebugFiles []string

	// entries is the decoded ledger, retained only so DumpEntries can hand
	// it to introspection tools without re-parsing the original chunk bytes.
	entries []fixup.Entry
}

// Load decodes a RAFF-wrapped package file and runs fixup over its static
// memory, binding external functions through resolve, which registers them
// in reg.
func Load(data []byte, reg *value.Registry, resolve fixup.ExternalResolver) (*Package, error) {
	r, err := raff.NewReader(data)
	if err != nil {
		return nil, err
	}

	outer, err := r.Expect(raff.IconOuter, raff.NameOuter)
	if err != nil {
		return nil, fmt.Errorf("loader: reading outer container: %w", err)
	}
	inner := raff.Nested(outer)

	typesChunk, err := inner.Expect(raff.IconTypes, raff.NameTypes)
	if err != nil {
		return nil, fmt.Errorf("loader: reading type-information chunk: %w", err)
	}
	types, err := typeinfo.Decode(typesChunk.Payload)
	if err != nil {
		return nil, fmt.Errorf("loader: decoding type information: %w", err)
	}

	memChunk, err := inner.Expect(raff.IconMemory, raff.NameMemory)
	if err != nil {
		return nil, fmt.Errorf("loader: reading dynamic-memory chunk: %w", err)
	}
	// The chunk is read-only input; Static takes ownership of its own copy
	// so later callers can't observe mutation through an aliased slice.
	staticBytes := append([]byte(nil), memChunk.Payload...)
	static := arena.NewStatic(staticBytes)

	ledgerChunk, err := inner.Expect(raff.IconLedger, raff.NameLedger)
	if err != nil {
		return nil, fmt.Errorf("loader: reading ledger chunk: %w", err)
	}
	entries, err := fixup.DecodeLedger(ledgerChunk.Payload)
	if err != nil {
		return nil, fmt.Errorf("loader: decoding ledger: %w", err)
	}

	checksum := blake2b.Sum256(staticBytes)
	debug.Log(nil, "load", "static memory %d bytes, %d ledger entries, checksum %x", len(staticBytes), len(entries), checksum[:8])

	mem := value.Memory{Static: static, Dynamic: arena.NewDynamic(0)}
	result, err := fixup.Run(mem, entries, reg, resolve)
	if err != nil {
		return nil, fmt.Errorf("loader: fixup: %w", err)
	}
	if result.Entry.IsNil() {
		return nil, fmt.Errorf("loader: package has no entry function named %q", "main")
	}

	return &Package{
		Types:         types,
		Static:        static,
		Entry:         result.Entry,
		Checksum:      checksum,
		ResourceNames: result.ResourceNames,
		DebugFiles:    result.DebugFiles,
		entries:       entries,
	}, nil
}

// EntryFunc resolves the package's entry function header against its
// static memory, ready to be passed to vm.Run.
func (p *Package) EntryFunc() value.FuncHeader {
	ptr, err := p.Static.At(p.Entry.Offset())
	debug.Assert(err == nil, "loader: entry ref %v out of static bounds: %v", p.Entry, err)
	return value.LoadFuncHeader(ptr)
}

// DumpEntries returns a defensive copy of the package's decoded ledger, for
// introspection tools that want to describe a package (its resource names,
// debug-info files, function count) without risking a caller mutating the
// loader's own record of what fixup already processed.
func (p *Package) DumpEntries() ([]fixup.Entry, error) {
	var out []fixup.Entry
	if err := deepcopy.Copy(&out, &p.entries); err != nil {
		return nil, fmt.Errorf("loader: copying ledger entries: %w", err)
	}
	return out, nil
}
