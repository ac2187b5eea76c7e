// cpmac.go - CPMAC ethernet controller with DMA descriptor rings

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/AvalancheEngine
License: GPLv3 or later
*/

/*
cpmac.go - CPMAC Ethernet MAC

Two CPMAC instances live in the complex, each with eight transmit and
eight receive DMA channels driven through head descriptor pointers. The
transmit path drains well-formed descriptor chains synchronously into
the packet backend; the receive path is driven from the backend side and
fills the head descriptor of channel 0. Frame statistics are kept in the
0x200 register window and per-channel completion is reported through
MAC_IN_VECTOR, which clears atomically on read.
*/

package main

import (
	"fmt"
	"hash/crc32"
	"math/bits"
)

const MAX_ETH_FRAME_SIZE = 1514

// CPMAC register offsets.
const (
	CPMAC_TX_IDVER           = 0x0000
	CPMAC_TX_CONTROL         = 0x0004
	CPMAC_TX_TEARDOWN        = 0x0008
	CPMAC_RX_IDVER           = 0x0010
	CPMAC_RX_CONTROL         = 0x0014
	CPMAC_RX_TEARDOWN        = 0x0018
	CPMAC_RX_MBP_ENABLE      = 0x0100
	CPMAC_RX_UNICAST_SET     = 0x0104
	CPMAC_RX_UNICAST_CLEAR   = 0x0108
	CPMAC_RX_MAXLEN          = 0x010c
	CPMAC_RX_BUFFER_OFFSET   = 0x0110
	CPMAC_RX_FILTERLOWTHRESH = 0x0114
	CPMAC_MACCONTROL         = 0x0160
	CPMAC_TX_INTSTAT_MASKED  = 0x0174
	CPMAC_TX_INTMASK_SET     = 0x0178
	CPMAC_TX_INTMASK_CLEAR   = 0x017c
	CPMAC_MAC_IN_VECTOR      = 0x0180
	CPMAC_MAC_EOI_VECTOR     = 0x0184
	CPMAC_RX_INTMASK_SET     = 0x0198
	CPMAC_RX_INTMASK_CLEAR   = 0x019c
	CPMAC_MAC_INTMASK_SET    = 0x01a8
	CPMAC_MACADDRLO_0        = 0x01b0
	CPMAC_MACADDRMID         = 0x01d0
	CPMAC_MACADDRHI          = 0x01d4
	CPMAC_MACHASH1           = 0x01d8
	CPMAC_MACHASH2           = 0x01dc

	CPMAC_RXGOODFRAMES       = 0x0200
	CPMAC_RXBROADCASTFRAMES  = 0x0204
	CPMAC_RXMULTICASTFRAMES  = 0x0208
	CPMAC_RXOVERSIZEDFRAMES  = 0x0218
	CPMAC_RXJABBERFRAMES     = 0x021c
	CPMAC_RXUNDERSIZEDFRAMES = 0x0220
	CPMAC_TXGOODFRAMES       = 0x0234
	CPMAC_TXBROADCASTFRAMES  = 0x0238
	CPMAC_TXMULTICASTFRAMES  = 0x023c
	CPMAC_RXDMAOVERRUNS      = 0x028c

	CPMAC_TX0_HDP     = 0x0600
	CPMAC_TX7_HDP     = 0x061c
	CPMAC_RX0_HDP     = 0x0620
	CPMAC_RX7_HDP     = 0x063c
	CPMAC_TX0_INT_ACK = 0x0640
	CPMAC_RX0_INT_ACK = 0x0660
)

// MAC_IN_VECTOR bit assignments.
const (
	MAC_IN_VECTOR_STATUS_INT = 1 << 19
	MAC_IN_VECTOR_HOST_INT   = 1 << 18
	MAC_IN_VECTOR_RX_INT_OR  = 1 << 17
	MAC_IN_VECTOR_TX_INT_OR  = 1 << 16
)

// Buffer descriptor control bits (shared by the Tcb and Rcb layout).
const (
	CB_SOF_BIT       = 1 << 31
	CB_EOF_BIT       = 1 << 30
	CB_OWNERSHIP_BIT = 1 << 29
	CB_EOQ_BIT       = 1 << 28
	CB_SIZE_MASK     = 0x0000ffff
)

// Safety bound on descriptor chain traversal. Real hardware would spin
// on a cycle; the emulator refuses instead.
const maxTxDescriptorsPerKick = 1024

var cpmacInterrupt = [2]int{IRQ_CPMAC0, IRQ_CPMAC1}

// cpmacDescriptor is the 16-byte DMA buffer descriptor: next pointer,
// buffer pointer, buffer length, and mode/control word.
type cpmacDescriptor struct {
	next   uint32
	buff   uint32
	length uint32
	mode   uint32
}

func (av *Avalanche) readDescriptor(addr uint32) cpmacDescriptor {
	var raw [16]byte
	av.mem.ReadPhys(addr, raw[:])
	return cpmacDescriptor{
		next:   leWord(raw[0:4]),
		buff:   leWord(raw[4:8]),
		length: leWord(raw[8:12]),
		mode:   leWord(raw[12:16]),
	}
}

func (av *Avalanche) writeDescriptor(addr uint32, d cpmacDescriptor) {
	var raw [16]byte
	putLEWord(raw[0:4], d.next)
	putLEWord(raw[4:8], d.buff)
	putLEWord(raw[8:12], d.length)
	putLEWord(raw[12:16], d.mode)
	av.mem.WritePhys(addr, raw[:])
}

var cpmacStatistics = []string{
	"RXGOODFRAMES",
	"RXBROADCASTFRAMES",
	"RXMULTICASTFRAMES",
	"RXPAUSEFRAMES",
	"RXCRCERRORS",
	"RXALIGNCODEERRORS",
	"RXOVERSIZEDFRAMES",
	"RXJABBERFRAMES",
	"RXUNDERSIZEDFRAMES",
	"RXFRAGMENTS",
	"RXFILTEREDFRAMES",
	"RXQOSFILTEREDFRAMES",
	"RXOCTETS",
	"TXGOODFRAMES",
	"TXBROADCASTFRAMES",
	"TXMULTICASTFRAMES",
	"TXPAUSEFRAMES",
	"TXDEFERREDFRAMES",
	"TXCOLLISIONFRAMES",
	"TXSINGLECOLLFRAMES",
	"TXMULTCOLLFRAMES",
	"TXEXCESSIVECOLLISIONS",
	"TXLATECOLLISIONS",
	"TXUNDERRUN",
	"TXCARRIERSENSEERRORS",
	"TXOCTETS",
	"64OCTETFRAMES",
	"65T127OCTETFRAMES",
	"128T255OCTETFRAMES",
	"256T511OCTETFRAMES",
	"512T1023OCTETFRAMES",
	"1024TUPOCTETFRAMES",
	"NETOCTETS",
	"RXSOFOVERRUNS",
	"RXMOFOVERRUNS",
	"RXDMAOVERRUNS",
}

// cpmacRegName resolves a word index to a register name for traces and
// the monitor's io command.
func cpmacRegName(index uint32) string {
	switch index {
	case 0x00:
		return "TX_IDVER"
	case 0x01:
		return "TX_CONTROL"
	case 0x02:
		return "TX_TEARDOWN"
	case 0x04:
		return "RX_IDVER"
	case 0x05:
		return "RX_CONTROL"
	case 0x06:
		return "RX_TEARDOWN"
	case 0x40:
		return "RX_MBP_ENABLE"
	case 0x41:
		return "RX_UNICAST_SET"
	case 0x42:
		return "RX_UNICAST_CLEAR"
	case 0x43:
		return "RX_MAXLEN"
	case 0x44:
		return "RX_BUFFER_OFFSET"
	case 0x45:
		return "RX_FILTERLOWTHRESH"
	case 0x58:
		return "MACCONTROL"
	case 0x5c:
		return "TX_INTSTAT_RAW"
	case 0x5d:
		return "TX_INTSTAT_MASKED"
	case 0x5e:
		return "TX_INTMASK_SET"
	case 0x5f:
		return "TX_INTMASK_CLEAR"
	case 0x60:
		return "MAC_IN_VECTOR"
	case 0x61:
		return "MAC_EOI_VECTOR"
	case 0x66:
		return "RX_INTMASK_SET"
	case 0x67:
		return "RX_INTMASK_CLEAR"
	case 0x6a:
		return "MAC_INTMASK_SET"
	case 0x74:
		return "MACADDRMID"
	case 0x75:
		return "MACADDRHI"
	case 0x76:
		return "MACHASH1"
	case 0x77:
		return "MACHASH2"
	}
	switch {
	case index >= 0x48 && index < 0x50:
		return fmt.Sprintf("RX%d_FLOWTHRESH", index&7)
	case index >= 0x50 && index < 0x58:
		return fmt.Sprintf("RX%d_FREEBUFFER", index&7)
	case index >= 0x6c && index < 0x74:
		return fmt.Sprintf("MACADDRLO_%d", index-0x6c)
	case index >= 0x80 && index < 0xa4:
		return "STAT_" + cpmacStatistics[index-0x80]
	case index >= 0x180 && index < 0x188:
		return fmt.Sprintf("TX%d_HDP", index&7)
	case index >= 0x188 && index < 0x190:
		return fmt.Sprintf("RX%d_HDP", index&7)
	case index >= 0x190 && index < 0x198:
		return fmt.Sprintf("TX%d_INT_ACK", index&7)
	case index >= 0x198 && index < 0x1a0:
		return fmt.Sprintf("RX%d_INT_ACK", index&7)
	}
	return fmt.Sprintf("0x%x", index)
}

// cpmacRead returns the register value. MAC_IN_VECTOR clears atomically
// in the same handler so the guest observes each completion once.
func (av *Avalanche) cpmacRead(index int, offset uint32) uint32 {
	cpmac := av.cpmac[index]
	val := regRead(cpmac, offset)
	tracef(traceCPMAC, "cpmac%d[%s] (0x%08x) = 0x%08x\n",
		index, cpmacRegName(offset/4), av.cpmacAddr(index, offset), val)
	if offset == CPMAC_MAC_IN_VECTOR {
		regWrite(cpmac, CPMAC_MAC_IN_VECTOR, 0)
	}
	return val
}

func (av *Avalanche) cpmacAddr(index int, offset uint32) uint32 {
	if index == 0 {
		return CPMAC0_BASE + offset
	}
	return CPMAC1_BASE + offset
}

func (av *Avalanche) cpmacWrite(index int, offset uint32, val uint32) {
	cpmac := av.cpmac[index]
	regWrite(cpmac, offset, val)
	tracef(traceCPMAC, "cpmac%d[%s] (0x%08x) = 0x%08x\n",
		index, cpmacRegName(offset/4), av.cpmacAddr(index, offset), val)

	switch {
	case offset == CPMAC_RX_MBP_ENABLE:
		// Stored, advisory. Bits 13..8 = 0x20 enables broadcast.
	case offset == CPMAC_RX_MAXLEN:
		tracef(traceCPMAC, "setting max packet length %d\n", val)
	case offset == CPMAC_TX_INTMASK_SET:
		if val != 0 {
			channel := uint32(bits.TrailingZeros32(val))
			regSet(cpmac, CPMAC_MAC_IN_VECTOR, MAC_IN_VECTOR_TX_INT_OR|channel)
			av.AssertLine(cpmacInterrupt[index], 1)
		}
	case offset == CPMAC_MACADDRHI:
		// The guest writes the low, mid and high address bytes first;
		// the high-word write commits the assembled address.
		phys := &av.nic[index].phys
		phys[0] = cpmac[CPMAC_MACADDRHI+0]
		phys[1] = cpmac[CPMAC_MACADDRHI+1]
		phys[2] = cpmac[CPMAC_MACADDRHI+2]
		phys[3] = cpmac[CPMAC_MACADDRHI+3]
		phys[4] = cpmac[CPMAC_MACADDRMID]
		phys[5] = cpmac[CPMAC_MACADDRLO_0]
		tracef(traceCPMAC, "setting MAC %02x:%02x:%02x:%02x:%02x:%02x\n",
			phys[0], phys[1], phys[2], phys[3], phys[4], phys[5])
	case offset >= CPMAC_RXGOODFRAMES && offset <= CPMAC_RXDMAOVERRUNS:
		// The statistics window is read-only; writing all-ones clears
		// a counter.
		if val == 0xffffffff {
			regWrite(cpmac, offset, 0)
		} else {
			av.unexpected()
		}
	case offset >= CPMAC_TX0_HDP && offset <= CPMAC_TX7_HDP:
		av.cpmacTransmit(index, (offset-CPMAC_TX0_HDP)/4, val)
	case offset >= CPMAC_RX0_HDP && offset <= CPMAC_RX7_HDP:
		// Receive is driven from the packet backend; just peek the
		// queued descriptor for the trace.
		if val != 0 {
			d := av.readDescriptor(val)
			tracef(traceCPMAC,
				"buffer 0x%08x, next 0x%08x, buff 0x%08x, params 0x%08x, len 0x%08x\n",
				val, d.next, d.buff, d.mode, d.length)
		}
	}
}

// cpmacTransmit drains the descriptor chain rooted at val. The guest
// driver only ever queues single-buffer frames, so SOF, EOF and
// OWNERSHIP must all be set and the mode size must match the buffer
// length; anything else means corrupted guest state and stops the
// emulator.
func (av *Avalanche) cpmacTransmit(index int, channel uint32, val uint32) {
	visited := 0
	for val != 0 {
		if visited++; visited > maxTxDescriptorsPerKick {
			panic("cpmac: transmit descriptor chain does not terminate")
		}
		d := av.readDescriptor(val)
		size := d.mode & CB_SIZE_MASK
		tracef(traceRXTX,
			"buffer 0x%08x, next 0x%08x, buff 0x%08x, params 0x%08x, len 0x%08x\n",
			val, d.next, d.buff, d.mode, d.length)
		if size > MAX_ETH_FRAME_SIZE {
			panic("cpmac: transmit buffer overflows frame accumulator")
		}
		if size != d.length ||
			d.mode&CB_SOF_BIT == 0 || d.mode&CB_EOF_BIT == 0 ||
			d.mode&CB_OWNERSHIP_BIT == 0 {
			panic("cpmac: malformed transmit descriptor")
		}
		buffer := make([]byte, size)
		av.mem.ReadPhys(d.buff, buffer)

		// Return ownership to the guest before the frame leaves the
		// device, matching the hardware's bus-then-interrupt order.
		d.mode &^= CB_OWNERSHIP_BIT
		av.mem.StoreWord(val+12, d.mode)

		if av.nic[index].vc != nil {
			if traceRXTX {
				logout("CPMAC %d sent %d byte (FCS 0x%08x):%s\n",
					index, len(buffer), crc32.ChecksumIEEE(buffer), dump(buffer))
			}
			av.nic[index].vc.Send(buffer)
			regInc(av.cpmac[index], CPMAC_TXGOODFRAMES)
			regSet(av.cpmac[index], CPMAC_MAC_IN_VECTOR, MAC_IN_VECTOR_TX_INT_OR|channel)
			av.AssertLine(cpmacInterrupt[index], 1)
		}
		val = d.next
	}
}

// CanReceive reports whether receive channel 0 has a queued descriptor.
func (av *Avalanche) CanReceive(index int) bool {
	return regRead(av.cpmac[index], CPMAC_RX0_HDP) != 0
}

// Receive accepts one frame from the packet backend, classifies it for
// the statistics counters and fills the head descriptor of channel 0.
// The updated descriptor and head pointer are published before the
// interrupt is raised.
func (av *Avalanche) Receive(index int, buf []byte) {
	cpmac := av.cpmac[index]
	size := uint32(len(buf))
	tracef(traceRXTX, "CPMAC %d received %d byte:%s\n", index, size, dump(buf))

	if isBroadcast(buf) {
		tracef(traceCPMAC, "broadcast\n")
		regInc(cpmac, CPMAC_RXBROADCASTFRAMES)
	} else if len(buf) > 0 && buf[0]&0x01 != 0 {
		tracef(traceCPMAC, "multicast\n")
		regInc(cpmac, CPMAC_RXMULTICASTFRAMES)
	} else if matchesMAC(buf, av.nic[index].phys) {
		tracef(traceCPMAC, "my address\n")
	} else {
		tracef(traceCPMAC, "unknown address\n")
	}

	if size < 64 {
		regInc(cpmac, CPMAC_RXUNDERSIZEDFRAMES)
	} else if size > MAX_ETH_FRAME_SIZE {
		regInc(cpmac, CPMAC_RXOVERSIZEDFRAMES)
	}
	regInc(cpmac, CPMAC_RXGOODFRAMES)

	val := regRead(cpmac, CPMAC_RX0_HDP)
	if val == 0 {
		tracef(traceRXTX, "no buffer available, frame ignored\n")
		return
	}
	d := av.readDescriptor(val)
	tracef(traceCPMAC,
		"buffer 0x%08x, next 0x%08x, buff 0x%08x, params 0x%08x, len 0x%08x\n",
		val, d.next, d.buff, d.mode, d.length)
	if d.mode&CB_OWNERSHIP_BIT == 0 {
		logout("buffer not free, frame ignored\n")
		return
	}

	d.mode &^= CB_OWNERSHIP_BIT
	d.mode |= size & CB_SIZE_MASK
	d.mode |= CB_SOF_BIT | CB_EOF_BIT
	if d.next == 0 {
		tracef(traceCPMAC, "last buffer\n")
		d.mode |= CB_EOQ_BIT
	}
	d.length = size
	av.mem.WritePhys(d.buff, buf)
	av.writeDescriptor(val, d)
	regWrite(cpmac, CPMAC_RX0_HDP, d.next)

	regSet(cpmac, CPMAC_MAC_IN_VECTOR, MAC_IN_VECTOR_RX_INT_OR|0)
	av.AssertLine(cpmacInterrupt[index], 1)
}

func isBroadcast(buf []byte) bool {
	if len(buf) < 6 {
		return false
	}
	for _, b := range buf[:6] {
		if b != 0xff {
			return false
		}
	}
	return true
}

func matchesMAC(buf []byte, mac [6]byte) bool {
	if len(buf) < 6 {
		return false
	}
	for i := 0; i < 6; i++ {
		if buf[i] != mac[i] {
			return false
		}
	}
	return true
}
