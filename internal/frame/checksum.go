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

// CRC8 is an incremental CRC-8 register using polynomial 0x07, MSB first,
// zero initial value and no final XOR.
//
// The zero value is a cleared register ready for use.
type CRC8 struct {
	reg byte
}

// Update folds one byte into the register.
func (c *CRC8) Update(b byte) {
	reg := c.reg ^ b
	for range 8 {
		if reg&0x80 != 0 {
			reg = reg<<1 ^ Polynomial
		} else {
			reg <<= 1
		}
	}
	c.reg = reg
}

// Clear resets the register to zero.
func (c *CRC8) Clear() {
	c.reg = 0
}

// Sum returns the current register value.
func (c *CRC8) Sum() byte {
	return c.reg
}

// Checksum computes the CRC-8 of a whole buffer in one call.
func Checksum(data []byte) byte {
	var crc CRC8
	for _, b := range data {
		crc.Update(b)
	}
	return crc.Sum()
}
