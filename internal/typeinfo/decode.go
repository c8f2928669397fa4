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

package typeinfo

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Decode parses the sti0 chunk's self-describing tag/varint stream into a
// Table.
//
// The stream is a varint entry count followed by that many entries, each
// prefixed by its varint byte length and itself a tag/varint message, so
// this decoder rides protowire's general-purpose tag and varint consumers
// rather than hand-rolling another one: the type table is read exactly once
// per loaded package, not on any hot path, so there is nothing to gain from
// a hand-inlined varint loop.
//
// Per-entry field numbers:
//  1. kind (varint)
//  2. size (varint)
//  3. align (varint)
//  4. elem index (varint) — Array/List/Alias element, Function return
//  5. name (bytes)
//  6. ecs (varint, 0 or 1)
//  7. repeated field (bytes, itself a tag/varint message: 1=name, 2=type
//     index, 3=byte offset)
//  8. repeated variant, for Custom types (bytes, itself a message: 1=name,
//     2=repeated field using the same shape as top-level field 7)
func Decode(data []byte) (*Table, error) {
	var entryCount uint64
	rest := data
	if n, nn := protowire.ConsumeVarint(rest); nn > 0 {
		entryCount, rest = n, rest[nn:]
	} else {
		return nil, fmt.Errorf("typeinfo: missing entry count")
	}

	table := &Table{Types: make([]Type, 0, entryCount)}
	for i := uint64(0); i < entryCount; i++ {
		size, nn := protowire.ConsumeVarint(rest)
		if nn <= 0 {
			return nil, fmt.Errorf("typeinfo: entry %d: truncated length prefix", i)
		}
		rest = rest[nn:]
		if uint64(len(rest)) < size {
			return nil, fmt.Errorf("typeinfo: entry %d: truncated body", i)
		}
		entry := rest[:size]
		rest = rest[size:]

		ty, err := decodeEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("typeinfo: entry %d: %w", i, err)
		}
		table.Types = append(table.Types, ty)
	}
	return table, nil
}

func decodeEntry(data []byte) (Type, error) {
	var ty Type
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return ty, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			ty.Kind = Kind(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			ty.Size = uint32(v)
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			ty.Align = uint32(v)
			data = data[n:]
		case 4:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			ty.Elem = Index(v)
			data = data[n:]
		case 5:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			ty.Name = string(v)
			data = data[n:]
		case 6:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			ty.ECS = v != 0
			data = data[n:]
		case 7:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			f, err := decodeField(v)
			if err != nil {
				return ty, err
			}
			ty.Fields = append(ty.Fields, f)
			data = data[n:]
		case 8:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			variant, err := decodeVariant(v)
			if err != nil {
				return ty, err
			}
			ty.Variants = append(ty.Variants, variant)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return ty, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return ty, nil
}

func decodeVariant(data []byte) (Variant, error) {
	var v Variant
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return v, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case 1:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return v, protowire.ParseError(n)
			}
			v.Name = string(b)
			data = data[n:]
		case 2:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return v, protowire.ParseError(n)
			}
			f, err := decodeField(b)
			if err != nil {
				return v, err
			}
			v.Fields = append(v.Fields, f)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return v, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return v, nil
}

func decodeField(data []byte) (Field, error) {
	var f Field
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return f, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			f.Name = string(v)
			data = data[n:]
		case 2:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			f.Type = Index(v)
			data = data[n:]
		case 3:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			f.Offset = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return f, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return f, nil
}
