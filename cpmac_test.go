// cpmac_test.go - CPMAC descriptor engine and statistics tests

package main

import (
	"bytes"
	"testing"
)

// sinkClient attaches a capturing port to the machine's segment.
func sinkClient(m *Machine) *[][]byte {
	var frames [][]byte
	m.Hub.NewClient("sink", func(buf []byte) {
		frame := make([]byte, len(buf))
		copy(frame, buf)
		frames = append(frames, frame)
	}, nil)
	return &frames
}

// seedDescriptor writes a 16-byte buffer descriptor into guest RAM.
func seedDescriptor(m *Machine, addr uint32, next uint32, buff uint32, length uint32, mode uint32) {
	m.Bus.StoreWord(addr+0, next)
	m.Bus.StoreWord(addr+4, buff)
	m.Bus.StoreWord(addr+8, length)
	m.Bus.StoreWord(addr+12, mode)
}

// enableCPMACIRQ opens the interrupt mask for a CPMAC channel.
func enableCPMACIRQ(m *Machine, irqNum int) {
	m.Bus.Write32(INTC_BASE+INTC_INTESR1*4, 1<<uint(irqNum-8))
}

// =============================================================================
// MAC address assembly
// =============================================================================

// TestMACAddressProgram replays the guest's address programming
// sequence: low and mid bytes first, then the committing high word.
func TestMACAddressProgram(t *testing.T) {
	m := newTestMachine(t)

	m.Bus.Write32(0x086101b0, 0x04030201)
	m.Bus.Write32(0x086101d0, 0x00000005)
	m.Bus.Write32(0x086101d4, 0x09080706)

	want := [6]byte{0x06, 0x07, 0x08, 0x09, 0x05, 0x01}
	if got := m.AV.MACAddress(0); got != want {
		t.Fatalf("MAC = %02x, expected %02x", got, want)
	}
}

// =============================================================================
// Transmit path
// =============================================================================

// TestTransmitOneFrame drains a single well-formed descriptor: one
// frame on the segment, ownership returned, completion vectored, IRQ
// raised, statistics bumped.
func TestTransmitOneFrame(t *testing.T) {
	m := newTestMachine(t)
	frames := sinkClient(m)
	enableCPMACIRQ(m, IRQ_CPMAC0)

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	m.Bus.WritePhys(0x10000100, payload)
	seedDescriptor(m, 0x10000000, 0, 0x10000100, 64, 0xe0000040)

	m.Bus.Write32(0x08610600, 0x10000000)

	if len(*frames) != 1 {
		t.Fatalf("sent %d frames, expected 1", len(*frames))
	}
	if !bytes.Equal((*frames)[0], payload) {
		t.Fatal("transmitted frame does not match payload")
	}
	if got := m.Bus.Read32(0x1000000c); got != 0xc0000040 {
		t.Fatalf("descriptor mode = 0x%08X, expected 0xC0000040 (ownership cleared)", got)
	}
	vec := m.Bus.Read32(CPMAC0_BASE + CPMAC_MAC_IN_VECTOR)
	if vec&0x00010000 == 0 {
		t.Fatalf("MAC_IN_VECTOR = 0x%08X, expected TX_INT_OR set", vec)
	}
	if !m.CPU.IRQAsserted() {
		t.Fatal("IRQ 27 not asserted")
	}
	if m.CPU.Cause()&CP0_CAUSE_IP2 == 0 {
		t.Fatalf("CP0_Cause = 0x%08X, expected bit 0x400", m.CPU.Cause())
	}
	if got := m.Bus.Read32(CPMAC0_BASE + CPMAC_TXGOODFRAMES); got != 1 {
		t.Fatalf("TXGOODFRAMES = %d, expected 1", got)
	}
}

// TestMacInVectorClearsOnRead verifies the read-to-acknowledge
// semantics: the first read returns the pending vector, the second
// reads zero.
func TestMacInVectorClearsOnRead(t *testing.T) {
	m := newTestMachine(t)
	sinkClient(m)
	enableCPMACIRQ(m, IRQ_CPMAC0)

	seedDescriptor(m, 0x10000000, 0, 0x10000100, 64, 0xe0000040)
	m.Bus.Write32(0x08610600, 0x10000000)

	first := m.Bus.Read32(CPMAC0_BASE + CPMAC_MAC_IN_VECTOR)
	if first == 0 {
		t.Fatal("MAC_IN_VECTOR read zero after transmit")
	}
	if got := m.Bus.Read32(CPMAC0_BASE + CPMAC_MAC_IN_VECTOR); got != 0 {
		t.Fatalf("MAC_IN_VECTOR second read = 0x%08X, expected 0", got)
	}
}

// TestTransmitChain drains a chain of descriptors in order and counts
// one good frame each.
func TestTransmitChain(t *testing.T) {
	m := newTestMachine(t)
	frames := sinkClient(m)

	const n = 5
	for i := uint32(0); i < n; i++ {
		desc := 0x14000000 + i*0x100
		buff := 0x14010000 + i*0x800
		next := desc + 0x100
		if i == n-1 {
			next = 0
		}
		payload := bytes.Repeat([]byte{byte('A' + i)}, 64)
		m.Bus.WritePhys(buff, payload)
		seedDescriptor(m, desc, next, buff, 64, 0xe0000040)
	}

	m.Bus.Write32(0x08610600, 0x14000000)

	if len(*frames) != n {
		t.Fatalf("sent %d frames, expected %d", len(*frames), n)
	}
	for i := 0; i < n; i++ {
		if (*frames)[i][0] != byte('A'+i) {
			t.Fatalf("frame %d out of order: leading byte 0x%02X", i, (*frames)[i][0])
		}
	}
	if got := m.Bus.Read32(CPMAC0_BASE + CPMAC_TXGOODFRAMES); got != n {
		t.Fatalf("TXGOODFRAMES = %d, expected %d", got, n)
	}
}

// TestTransmitMalformedDescriptorFatal verifies a descriptor without
// ownership stops the emulator.
func TestTransmitMalformedDescriptorFatal(t *testing.T) {
	m := newTestMachine(t)
	sinkClient(m)

	seedDescriptor(m, 0x14000000, 0, 0x14000100, 64, 0xc0000040) // no OWNERSHIP
	defer func() {
		if recover() == nil {
			t.Fatal("malformed descriptor did not panic")
		}
	}()
	m.Bus.Write32(0x08610600, 0x14000000)
}

// TestTransmitIntMaskSet verifies TX_INTMASK_SET vectors the lowest
// enabled channel and raises the CPMAC interrupt.
func TestTransmitIntMaskSet(t *testing.T) {
	m := newTestMachine(t)
	enableCPMACIRQ(m, IRQ_CPMAC0)

	m.Bus.Write32(CPMAC0_BASE+CPMAC_TX_INTMASK_SET, 0x4)
	vec := m.Bus.Read32(CPMAC0_BASE + CPMAC_MAC_IN_VECTOR)
	if vec != MAC_IN_VECTOR_TX_INT_OR|2 {
		t.Fatalf("MAC_IN_VECTOR = 0x%08X, expected 0x%08X",
			vec, uint32(MAC_IN_VECTOR_TX_INT_OR|2))
	}
	if !m.CPU.IRQAsserted() {
		t.Fatal("IRQ not asserted")
	}
}

// =============================================================================
// Receive path
// =============================================================================

// TestReceiveFillsDescriptor checks the whole RX contract: payload DMA,
// ownership handoff, EOQ on last buffer, head pointer advance, vector
// and statistics.
func TestReceiveFillsDescriptor(t *testing.T) {
	m := newTestMachine(t)
	enableCPMACIRQ(m, IRQ_CPMAC0)

	seedDescriptor(m, 0x14000000, 0, 0x14000100, 256, CB_OWNERSHIP_BIT)
	m.Bus.Write32(0x08610620, 0x14000000)

	if !m.AV.CanReceive(0) {
		t.Fatal("CanReceive false with queued descriptor")
	}

	frame := bytes.Repeat([]byte{0xaa}, 100)
	frame[0] = 0x02 // unicast
	m.AV.Receive(0, frame)

	got := make([]byte, 100)
	m.Bus.ReadPhys(0x14000100, got)
	if !bytes.Equal(got, frame) {
		t.Fatal("frame bytes not written to descriptor buffer")
	}
	mode := m.Bus.Read32(0x1400000c)
	if mode&CB_OWNERSHIP_BIT != 0 {
		t.Fatalf("mode = 0x%08X, expected ownership cleared", mode)
	}
	if mode&(CB_SOF_BIT|CB_EOF_BIT|CB_EOQ_BIT) != CB_SOF_BIT|CB_EOF_BIT|CB_EOQ_BIT {
		t.Fatalf("mode = 0x%08X, expected SOF|EOF|EOQ", mode)
	}
	if mode&CB_SIZE_MASK != 100 {
		t.Fatalf("mode size = %d, expected 100", mode&CB_SIZE_MASK)
	}
	if got := m.Bus.Read32(0x14000008); got != 100 {
		t.Fatalf("descriptor length = %d, expected 100", got)
	}
	if got := m.Bus.Read32(0x08610620); got != 0 {
		t.Fatalf("RX0_HDP = 0x%08X, expected 0", got)
	}
	if m.AV.CanReceive(0) {
		t.Fatal("CanReceive true after last descriptor consumed")
	}
	vec := m.Bus.Read32(CPMAC0_BASE + CPMAC_MAC_IN_VECTOR)
	if vec&MAC_IN_VECTOR_RX_INT_OR == 0 {
		t.Fatalf("MAC_IN_VECTOR = 0x%08X, expected RX_INT_OR", vec)
	}
	if !m.CPU.IRQAsserted() {
		t.Fatal("IRQ not asserted after receive")
	}
	if got := m.Bus.Read32(CPMAC0_BASE + CPMAC_RXGOODFRAMES); got != 1 {
		t.Fatalf("RXGOODFRAMES = %d, expected 1", got)
	}
	if got := m.Bus.Read32(CPMAC0_BASE + CPMAC_RXUNDERSIZEDFRAMES); got != 0 {
		t.Fatalf("RXUNDERSIZEDFRAMES = %d, expected 0", got)
	}
}

// TestReceiveClassification checks the broadcast/multicast/undersized
// counter updates.
func TestReceiveClassification(t *testing.T) {
	m := newTestMachine(t)

	seedDescriptor(m, 0x14000000, 0x14000040, 0x14001000, 256, CB_OWNERSHIP_BIT)
	seedDescriptor(m, 0x14000040, 0, 0x14002000, 256, CB_OWNERSHIP_BIT)
	m.Bus.Write32(0x08610620, 0x14000000)

	bcast := bytes.Repeat([]byte{0xff}, 32) // broadcast and undersized
	m.AV.Receive(0, bcast)

	mcast := bytes.Repeat([]byte{0x00}, 64)
	mcast[0] = 0x01
	m.AV.Receive(0, mcast)

	read := func(off uint32) uint32 { return m.Bus.Read32(CPMAC0_BASE + off) }
	if got := read(CPMAC_RXBROADCASTFRAMES); got != 1 {
		t.Fatalf("RXBROADCASTFRAMES = %d, expected 1", got)
	}
	if got := read(CPMAC_RXMULTICASTFRAMES); got != 1 {
		t.Fatalf("RXMULTICASTFRAMES = %d, expected 1", got)
	}
	if got := read(CPMAC_RXUNDERSIZEDFRAMES); got != 1 {
		t.Fatalf("RXUNDERSIZEDFRAMES = %d, expected 1", got)
	}
	if got := read(CPMAC_RXGOODFRAMES); got != 2 {
		t.Fatalf("RXGOODFRAMES = %d, expected 2", got)
	}
}

// TestReceiveUnownedDescriptorDrops verifies a frame arriving at an
// unowned descriptor is dropped without touching guest memory.
func TestReceiveUnownedDescriptorDrops(t *testing.T) {
	m := newTestMachine(t)

	seedDescriptor(m, 0x14000000, 0, 0x14000100, 256, 0) // guest owns it
	m.Bus.Write32(0x08610620, 0x14000000)

	m.AV.Receive(0, bytes.Repeat([]byte{0x55}, 64))

	if got := m.Bus.Read32(0x08610620); got != 0x14000000 {
		t.Fatalf("RX0_HDP advanced to 0x%08X on dropped frame", got)
	}
	got := make([]byte, 4)
	m.Bus.ReadPhys(0x14000100, got)
	if !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Fatal("dropped frame wrote to guest memory")
	}
}

// =============================================================================
// Statistics window
// =============================================================================

// TestStatisticsClearOnAllOnes verifies the write-ones-to-clear
// behavior of the counter window.
func TestStatisticsClearOnAllOnes(t *testing.T) {
	m := newTestMachine(t)
	sinkClient(m)

	seedDescriptor(m, 0x10000000, 0, 0x10000100, 64, 0xe0000040)
	m.Bus.Write32(0x08610600, 0x10000000)
	if got := m.Bus.Read32(CPMAC0_BASE + CPMAC_TXGOODFRAMES); got != 1 {
		t.Fatalf("TXGOODFRAMES = %d, expected 1", got)
	}

	m.Bus.Write32(CPMAC0_BASE+CPMAC_TXGOODFRAMES, 0xffffffff)
	if got := m.Bus.Read32(CPMAC0_BASE + CPMAC_TXGOODFRAMES); got != 0 {
		t.Fatalf("TXGOODFRAMES after clear = %d, expected 0", got)
	}
}

// =============================================================================
// CPMAC instance separation
// =============================================================================

// TestCPMACInstancesIndependent verifies index-based dispatch keeps the
// two MACs apart: the second instance vectors IRQ 41.
func TestCPMACInstancesIndependent(t *testing.T) {
	m := newTestMachine(t)

	m.Bus.Write32(CPMAC1_BASE+CPMAC_TX_INTMASK_SET, 0x1)
	if got := m.Bus.Read32(CPMAC0_BASE + CPMAC_MAC_IN_VECTOR); got != 0 {
		t.Fatalf("cpmac0 vector = 0x%08X, expected 0", got)
	}
	vec := m.Bus.Read32(CPMAC1_BASE + CPMAC_MAC_IN_VECTOR)
	if vec != MAC_IN_VECTOR_TX_INT_OR {
		t.Fatalf("cpmac1 vector = 0x%08X, expected 0x%08X",
			vec, uint32(MAC_IN_VECTOR_TX_INT_OR))
	}
	// IRQ 41's channel (33) is outside the first mask bank, so no CPU
	// interrupt can fire for CPMAC1 regardless of the enable bits.
	if m.CPU.IRQAsserted() {
		t.Fatal("CPMAC1 raised a CPU interrupt through bank 0")
	}
}

func BenchmarkDispatchRead32(b *testing.B) {
	m, err := NewMachine(MachineConfig{})
	if err != nil {
		b.Fatalf("NewMachine failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Bus.Read32(EMIF_BASE)
	}
}
