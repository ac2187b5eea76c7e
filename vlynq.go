// vlynq.go - VLYNQ serial bus port controllers

package main

import "fmt"

// vlynqNames covers the register file of one port half (local then
// remote). Offsets past the table are interrupt vector slots.
var vlynqNames = []string{
	"Revision",
	"Control",
	"Status",
	"Interrupt Priority Vector Status/Clear",
	"Interrupt Status/Clear",
	"Interrupt Pending/Set",
	"Interrupt Pointer",
	"Tx Address Map",
	"Rx Address Map Size 1",
	"Rx Address Map Offset 1",
	"Rx Address Map Size 2",
	"Rx Address Map Offset 2",
	"Rx Address Map Size 3",
	"Rx Address Map Offset 3",
	"Rx Address Map Size 4",
	"Rx Address Map Offset 4",
	"Chip Version",
	"Auto Negotiation",
	"Manual Negotiation",
	"Negotiation Status",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Remote Revision",
	"Remote Control",
	"Remote Status",
	"Remote Interrupt Priority Vector Status/Clear",
	"Remote Interrupt Status/Clear",
	"Remote Interrupt Pending/Set",
	"Remote Interrupt Pointer",
	"Remote Tx Address Map",
	"Remote Rx Address Map Size 1",
	"Remote Rx Address Map Offset 1",
	"Remote Rx Address Map Size 2",
	"Remote Rx Address Map Offset 2",
	"Remote Rx Address Map Size 3",
	"Remote Rx Address Map Offset 3",
	"Remote Rx Address Map Size 4",
	"Remote Rx Address Map Offset 4",
	"Remote Chip Version",
	"Remote Auto Negotiation",
	"Remote Manual Negotiation",
	"Remote Negotiation Status",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Remote Interrupt Vector 3-0",
	"Remote Interrupt Vector 7-4",
}

func vlynqName(offset uint32) string {
	if int(offset/4) < len(vlynqNames) {
		return vlynqNames[offset/4]
	}
	return fmt.Sprintf("0x%02x", offset)
}

// vlynqRead returns the stored value except for the revision register,
// which always reads as the fixed silicon revision.
func (av *Avalanche) vlynqRead(index int, offset uint32) uint32 {
	val := regRead(av.vlynq[index], offset)
	if offset == VLYNQ_REVID {
		val = VLYNQ_REVID_VALUE
	}
	tracef(traceVLYNQ, "vlynq%d[0x%02x (%s)] = 0x%08x\n",
		index, offset, vlynqName(offset), val)
	return val
}

// vlynqWrite mirrors the control reset bit into the status link bit:
// taking the port out of reset brings the link up.
func (av *Avalanche) vlynqWrite(index int, offset uint32, val uint32) {
	tracef(traceVLYNQ, "vlynq%d[0x%02x (%s)] = 0x%08x\n",
		index, offset, vlynqName(offset), val)
	if offset == VLYNQ_CTRL {
		if val&1 == 0 {
			regSet(av.vlynq[index], VLYNQ_STAT, 1)
		} else {
			regClear(av.vlynq[index], VLYNQ_STAT, 1)
		}
	}
	regWrite(av.vlynq[index], offset, val)
}
