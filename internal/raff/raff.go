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

// Package raff reads the RAFF (tagged-chunk) container format a Swamp
// package file is wrapped in: a short magic header followed by nested
// chunks, each tagged with a four-byte icon and a four-byte name.
package raff

import (
	"encoding/binary"
	"fmt"
)

// Magic is the fixed byte sequence every RAFF stream starts with.
var Magic = [4]byte{'R', 'A', 'F', 'F'}

// Version is the container format version this reader understands.
const Version = 1

// Tag is a four-byte chunk identifier, used for both a chunk's icon and its
// name.
type Tag [4]byte

func (t Tag) String() string {
	return fmt.Sprintf("%02x%02x%02x%02x", t[0], t[1], t[2], t[3])
}

// Well-known chunk tags, matching the original container's icon/name pairs.
var (
	IconOuter  = Tag{0xF0, 0x9F, 0x93, 0xA6}
	NameOuter  = Tag{'s', 'p', 'k', '5'}
	IconTypes  = Tag{0xF0, 0x9F, 0x93, 0x9C}
	NameTypes  = Tag{'s', 't', 'i', '0'}
	IconMemory = Tag{0xF0, 0x9F, 0x92, 0xBB}
	NameMemory = Tag{'d', 'm', 'e', '0'}
	IconLedger = Tag{0xF0, 0x9F, 0x97, 0x92}
	NameLedger = Tag{'l', 'd', 'g', '0'}
)

// Reader walks a byte stream chunk by chunk.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data, reading and verifying the container
// header.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < 5 || [4]byte(data[:4]) != Magic {
		return nil, fmt.Errorf("raff: missing or invalid magic header")
	}
	if data[4] != Version {
		return nil, fmt.Errorf("raff: unsupported container version %d", data[4])
	}
	return &Reader{data: data, pos: 5}, nil
}

// Chunk is one tagged region of the container: its icon, name, and payload
// bytes.
type Chunk struct {
	Icon    Tag
	Name    Tag
	Payload []byte
}

// ReadChunk reads the next chunk header and returns its payload without
// verifying the tag; callers that know which chunk comes next should prefer
// Expect.
func (r *Reader) ReadChunk() (Chunk, error) {
	if len(r.data)-r.pos < 12 {
		return Chunk{}, fmt.Errorf("raff: truncated chunk header at offset %d", r.pos)
	}
	var c Chunk
	copy(c.Icon[:], r.data[r.pos:r.pos+4])
	copy(c.Name[:], r.data[r.pos+4:r.pos+8])
	size := binary.BigEndian.Uint32(r.data[r.pos+8 : r.pos+12])
	r.pos += 12

	if uint64(r.pos)+uint64(size) > uint64(len(r.data)) {
		return Chunk{}, fmt.Errorf("raff: chunk %s/%s size %d exceeds remaining data", c.Icon, c.Name, size)
	}
	c.Payload = r.data[r.pos : r.pos+int(size)]
	r.pos += int(size)
	return c, nil
}

// Expect reads the next chunk and verifies its icon and name match.
func (r *Reader) Expect(icon, name Tag) (Chunk, error) {
	c, err := r.ReadChunk()
	if err != nil {
		return Chunk{}, err
	}
	if c.Icon != icon {
		return Chunk{}, fmt.Errorf("raff: expected icon %s, got %s", icon, c.Icon)
	}
	if c.Name != name {
		return Chunk{}, fmt.Errorf("raff: expected name %s, got %s", name, c.Name)
	}
	return c, nil
}

// Nested returns a Reader scoped to c's payload, for containers (like the
// outer spk5 chunk) that themselves hold nested chunks.
func Nested(c Chunk) *Reader {
	return &Reader{data: c.Payload, pos: 0}
}

// Remaining reports how many unread bytes are left in the stream.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}
