// regfile.go - 32-bit little-endian register window primitives

package main

import "encoding/binary"

// Backing stores hold guest byte order (little-endian) at 4-byte-aligned
// word slots. These helpers convert to and from host values and are the
// only way block handlers touch their stores.

func regRead(reg []byte, offset uint32) uint32 {
	if offset&3 != 0 {
		panic("regfile: misaligned register read")
	}
	return binary.LittleEndian.Uint32(reg[offset : offset+4])
}

func regWrite(reg []byte, offset uint32, value uint32) {
	if offset&3 != 0 {
		panic("regfile: misaligned register write")
	}
	binary.LittleEndian.PutUint32(reg[offset:offset+4], value)
}

func regInc(reg []byte, offset uint32) {
	regWrite(reg, offset, regRead(reg, offset)+1)
}

func regSet(reg []byte, offset uint32, bits uint32) {
	regWrite(reg, offset, regRead(reg, offset)|bits)
}

func regClear(reg []byte, offset uint32, bits uint32) {
	regWrite(reg, offset, regRead(reg, offset)&^bits)
}

// leWord and putLEWord decode and encode loose little-endian words, used
// by the DMA descriptor codec.
func leWord(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func putLEWord(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}
