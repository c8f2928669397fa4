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

// Package typeinfo holds the decoded type-descriptor table a package file
// carries in its sti0 chunk, and the narrow interface the structural walker
// (clone, compact, blittable-check) drives off of.
package typeinfo

// Kind tags the shape of a single type-table entry.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindFixed
	KindChar
	KindRecord
	KindCustom
	KindArray
	KindList
	KindFunction
	KindTuple
	KindString
	KindBlob
	KindUnmanaged
	KindAlias
	KindResourceName
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFixed:
		return "Fixed"
	case KindChar:
		return "Char"
	case KindRecord:
		return "Record"
	case KindCustom:
		return "Custom"
	case KindArray:
		return "Array"
	case KindList:
		return "List"
	case KindFunction:
		return "Function"
	case KindTuple:
		return "Tuple"
	case KindString:
		return "String"
	case KindBlob:
		return "Blob"
	case KindUnmanaged:
		return "Unmanaged"
	case KindAlias:
		return "Alias"
	case KindResourceName:
		return "ResourceName"
	case KindAny:
		return "Any"
	default:
		return "Unknown"
	}
}

// Field describes one member of a Record or Tuple, or one parameter of a
// Function.
type Field struct {
	Name   string
	Type   Index
	Offset uint32
}

// Index is a position into a Table's Types slice. It is how one type
// descriptor refers to another (a Record's field type, an Array's element
// type, and so on) without the table needing to be a pointer graph.
type Index uint32

// Variant is one case of a Custom (tagged union) type: its own fields, laid
// out after the one-byte tag that selects it at runtime.
type Variant struct {
	Name   string
	Fields []Field
}

// Type is one decoded entry of the type-descriptor table: enough to drive
// the structural walker without consulting anything else.
type Type struct {
	Kind Kind

	// Size and Align describe the flat in-memory footprint of a value of
	// this type, in bytes.
	Size  uint32
	Align uint32

	// Fields holds Record/Tuple members, or Function parameters (with the
	// function's return type tracked separately in Elem).
	Fields []Field

	// Variants holds the tagged cases of a Custom type.
	Variants []Variant

	// Elem is the element type for Array/List/Alias, or the return type for
	// Function.
	Elem Index

	// Name carries the declared name for Record, Custom, Alias, and
	// ResourceName entries; used for diagnostics.
	Name string

	// ECS reports whether an Unmanaged entry is "externally copy-safe", which
	// makes it count as blittable. Blittable consults it only for Unmanaged
	// entries. Populated from the compiler's own determination, not
	// recomputed here.
	ECS bool
}

// Table is the decoded type-descriptor table for one package: a flat slice
// indexed by Index, so any type that refers to another does so by a small
// integer rather than a pointer.
type Table struct {
	Types []Type
}

// At returns the type at index i, or the zero Type if i is out of range.
func (t *Table) At(i Index) Type {
	if int(i) >= len(t.Types) {
		return Type{}
	}
	return t.Types[i]
}

// Blittable reports whether a value of type idx may be compacted by the
// structural walker: it is false if the type contains a Function, a
// ResourceName, or a non-ECS Unmanaged anywhere inside it, and true
// otherwise. Strings, blobs, lists and arrays count as blittable; the walker
// still follows and rewrites the Refs they are stored behind.
func (t *Table) Blittable(idx Index) bool {
	return t.blittable(idx, make(map[Index]bool))
}

func (t *Table) blittable(idx Index, seen map[Index]bool) bool {
	if b, ok := seen[idx]; ok {
		return b
	}
	seen[idx] = true

	ty := t.At(idx)
	switch ty.Kind {
	case KindFunction, KindResourceName:
		return false
	case KindUnmanaged:
		return ty.ECS
	case KindRecord, KindTuple:
		for _, f := range ty.Fields {
			if !t.blittable(f.Type, seen) {
				return false
			}
		}
		return true
	case KindCustom:
		for _, v := range ty.Variants {
			for _, f := range v.Fields {
				if !t.blittable(f.Type, seen) {
					return false
				}
			}
		}
		return true
	case KindArray, KindList, KindAlias:
		return t.blittable(ty.Elem, seen)
	default:
		return true
	}
}
