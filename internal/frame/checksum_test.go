// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceCRC8 computes the remainder of M(x)*x^8 mod (x^8+x^2+x+1) by plain
// long division over the augmented bit string.
func referenceCRC8(data []byte) byte {
	var rem uint16
	augmented := append(append([]byte{}, data...), 0x00)
	for _, b := range augmented {
		for i := 7; i >= 0; i-- {
			rem = rem<<1 | uint16(b>>uint(i)&1)
			if rem&0x100 != 0 {
				rem ^= 0x100 | Polynomial
			}
		}
	}
	return byte(rem)
}

func TestChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{
			name: "empty data",
			data: []byte{},
			want: 0x00,
		},
		{
			name: "single one",
			data: []byte{0x01},
			want: 0x07,
		},
		{
			name: "high bit only",
			data: []byte{0x80},
			want: 0x89,
		},
		{
			name: "standard check string",
			data: []byte("123456789"),
			want: 0xF4,
		},
		{
			name: "write command and address",
			data: []byte{0xA5, 0x66, 0x55, 0x44, 0x33, 0x22, 0xAB},
			want: referenceCRC8([]byte{0xA5, 0x66, 0x55, 0x44, 0x33, 0x22, 0xAB}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Checksum(tt.data))
		})
	}
}

func TestCRC8_ExhaustiveSingleByte(t *testing.T) {
	t.Parallel()

	seen := make(map[byte]byte, 256)
	for b := range 256 {
		got := Checksum([]byte{byte(b)})
		require.Equal(t, referenceCRC8([]byte{byte(b)}), got, "byte 0x%02X", b)

		prev, dup := seen[got]
		require.False(t, dup, "0x%02X and 0x%02X share checksum 0x%02X", prev, b, got)
		seen[got] = byte(b)
	}
}

func TestCRC8_ExhaustiveTwoBytes(t *testing.T) {
	t.Parallel()

	for first := range 256 {
		bySecond := make(map[byte]struct{}, 256)
		byFirst := make(map[byte]struct{}, 256)
		for second := range 256 {
			msg := []byte{byte(first), byte(second)}
			got := Checksum(msg)
			require.Equal(t, referenceCRC8(msg), got, "message % X", msg)
			bySecond[got] = struct{}{}

			// Swap roles so the varying byte is the leading one.
			byFirst[Checksum([]byte{byte(second), byte(first)})] = struct{}{}
		}
		require.Len(t, bySecond, 256, "second byte collisions after 0x%02X", first)
		require.Len(t, byFirst, 256, "first byte collisions before 0x%02X", first)
	}
}

func TestCRC8_Incremental(t *testing.T) {
	t.Parallel()

	data := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}

	var crc CRC8
	for _, b := range data {
		crc.Update(b)
	}
	first := crc.Sum()
	assert.Equal(t, Checksum(data), first)

	crc.Clear()
	assert.Equal(t, byte(0), crc.Sum())

	for _, b := range data {
		crc.Update(b)
	}
	assert.Equal(t, first, crc.Sum(), "accumulating twice must be deterministic")
}

func TestCRC8_IndependentRegisters(t *testing.T) {
	t.Parallel()

	var cmdAddr, data CRC8
	cmdAddr.Update(0xA5)
	data.Update(0x11)
	cmdAddr.Update(0x66)

	assert.Equal(t, Checksum([]byte{0xA5, 0x66}), cmdAddr.Sum())
	assert.Equal(t, Checksum([]byte{0x11}), data.Sum())
}

func TestByteAt(t *testing.T) {
	t.Parallel()

	const address = 0x6655443322AB
	want := []byte{0x66, 0x55, 0x44, 0x33, 0x22, 0xAB}
	for i, b := range want {
		assert.Equal(t, b, ByteAt(address, i, AddressBytes), "address byte %d", i)
	}

	const payload = 0x1122334455667788
	var rebuilt uint64
	for i := range PayloadBytes {
		rebuilt = ShiftIn(rebuilt, ByteAt(payload, i, PayloadBytes))
	}
	assert.Equal(t, uint64(payload), rebuilt)
}
