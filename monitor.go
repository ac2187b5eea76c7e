// monitor.go - Interactive machine monitor

/*
monitor.go - Machine Monitor

A small REPL for bring-up and debugging of the peripheral complex
without a guest: peek and poke MMIO, dump per-block register tables,
inspect CPMAC statistics and interrupt state, inject frames, take and
restore snapshots, and run Lua bring-up scripts.
*/

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/platinasystems/liner"
)

// IORegisterDesc describes a single register for display.
type IORegisterDesc struct {
	Name   string
	Offset uint32
}

// IODeviceDesc describes the displayable registers of one block.
type IODeviceDesc struct {
	Name      string
	Base      uint32
	Registers []IORegisterDesc
}

var monitorDevices = map[string]*IODeviceDesc{
	"intc": {
		Name: "Interrupt Controller",
		Base: INTC_BASE,
		Registers: []IORegisterDesc{
			{"INTSR1", INTC_INTSR1 * 4},
			{"INTSR2", INTC_INTSR2 * 4},
			{"INTCR1", INTC_INTCR1 * 4},
			{"INTCR2", INTC_INTCR2 * 4},
			{"INTESR1", INTC_INTESR1 * 4},
			{"INTESR2", INTC_INTESR2 * 4},
			{"INTECR1", INTC_INTECR1 * 4},
			{"INTECR2", INTC_INTECR2 * 4},
			{"PINTIR", INTC_PINTIR * 4},
			{"INTMSR", INTC_INTMSR * 4},
			{"INTPOLR1", INTC_INTPOLR1 * 4},
			{"INTPOLR2", INTC_INTPOLR2 * 4},
			{"INTTYPR1", INTC_INTTYPR1 * 4},
			{"INTTYPR2", INTC_INTTYPR2 * 4},
		},
	},
	"mdio": {
		Name: "MDIO",
		Base: MDIO_BASE,
		Registers: []IORegisterDesc{
			{"VER", MDIO_VER * 4},
			{"CONTROL", MDIO_CONTROL * 4},
			{"ALIVE", MDIO_ALIVE * 4},
			{"LINK", MDIO_LINK * 4},
			{"USERACCESS0", MDIO_USERACCESS0 * 4},
			{"USERPHYSEL0", MDIO_USERPHYSEL0 * 4},
		},
	},
	"wdt": {
		Name: "Watchdog",
		Base: WATCHDOG_BASE,
		Registers: []IORegisterDesc{
			{"KICK_LOCK", WDT_KICK_LOCK},
			{"KICK", WDT_KICK},
			{"CHANGE_LOCK", WDT_CHANGE_LOCK},
			{"CHANGE", WDT_CHANGE},
			{"DISABLE_LOCK", WDT_DISABLE_LOCK},
			{"DISABLE", WDT_DISABLE},
			{"PRESCALE_LOCK", WDT_PRESCALE_LOCK},
			{"PRESCALE", WDT_PRESCALE},
		},
	},
	"vlynq0": {
		Name: "VLYNQ0",
		Base: VLYNQ0_BASE,
		Registers: []IORegisterDesc{
			{"REVID", VLYNQ_REVID},
			{"CTRL", VLYNQ_CTRL},
			{"STAT", VLYNQ_STAT},
		},
	},
	"vlynq1": {
		Name: "VLYNQ1",
		Base: VLYNQ1_BASE,
		Registers: []IORegisterDesc{
			{"REVID", VLYNQ_REVID},
			{"CTRL", VLYNQ_CTRL},
			{"STAT", VLYNQ_STAT},
		},
	},
	"gpio": {
		Name: "GPIO",
		Base: GPIO_BASE,
		Registers: []IORegisterDesc{
			{"DATA_IN", 0x00},
			{"DATA_OUT", 0x04},
			{"DIR", 0x08},
			{"ENABLE", 0x0c},
		},
	},
}

// Monitor is the REPL state.
type Monitor struct {
	machine *Machine
	out     io.Writer
}

func NewMonitor(machine *Machine, out io.Writer) *Monitor {
	return &Monitor{machine: machine, out: out}
}

// Run reads commands until quit or EOF.
func (mon *Monitor) Run() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("ar7> ")
		if err != nil {
			fmt.Fprintln(mon.out)
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if !mon.dispatch(input) {
			return
		}
	}
}

// dispatch executes one command line; returns false on quit.
func (mon *Monitor) dispatch(input string) bool {
	args := strings.Fields(input)
	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "quit", "q", "exit":
		return false
	case "help", "?":
		mon.printHelp()
	case "rd":
		mon.cmdRead(args)
	case "wr":
		mon.cmdWrite(args)
	case "io":
		mon.cmdIO(args)
	case "stats":
		mon.cmdStats(args)
	case "irq":
		mon.cmdIRQ()
	case "mac":
		mon.cmdMAC()
	case "inject":
		mon.cmdInject(args)
	case "save":
		mon.cmdSave(args)
	case "load":
		mon.cmdLoad(args)
	case "reset":
		mon.machine.AV.Reset()
		fmt.Fprintln(mon.out, "peripheral complex reset to defaults")
	case "script":
		mon.cmdScript(args)
	default:
		fmt.Fprintf(mon.out, "unknown command %q, try help\n", cmd)
	}
	return true
}

func (mon *Monitor) printHelp() {
	fmt.Fprint(mon.out, `commands:
  rd <addr> [words]     read MMIO words
  wr <addr> <val>       write one MMIO word
  io <block>            dump a register block (intc, mdio, wdt, vlynq0, vlynq1, gpio)
  stats [0|1]           CPMAC statistics counters
  irq                   interrupt controller and CPU line state
  mac                   programmed MAC addresses
  inject <0|1> <hex>    receive a frame on a CPMAC
  save <path>           write a snapshot
  load <path>           restore a snapshot
  reset                 reset the peripheral complex
  script <file.lua>     run a Lua bring-up script
  quit
`)
}

func parseWord(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func (mon *Monitor) cmdRead(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(mon.out, "usage: rd <addr> [words]")
		return
	}
	addr, err := parseWord(args[0])
	if err != nil {
		fmt.Fprintf(mon.out, "bad address: %v\n", err)
		return
	}
	count := 1
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			count = n
		}
	}
	for i := 0; i < count; i++ {
		a := addr + uint32(i)*4
		fmt.Fprintf(mon.out, "0x%08X: 0x%08X\n", a, mon.machine.Bus.Read32(a))
	}
}

func (mon *Monitor) cmdWrite(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(mon.out, "usage: wr <addr> <val>")
		return
	}
	addr, err1 := parseWord(args[0])
	val, err2 := parseWord(args[1])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(mon.out, "bad argument")
		return
	}
	mon.machine.Bus.Write32(addr, val)
}

func (mon *Monitor) cmdIO(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(mon.out, "usage: io <block>")
		return
	}
	dev, ok := monitorDevices[args[0]]
	if !ok {
		fmt.Fprintf(mon.out, "unknown block %q\n", args[0])
		return
	}
	fmt.Fprintf(mon.out, "%s (0x%08X)\n", dev.Name, dev.Base)
	for _, reg := range dev.Registers {
		fmt.Fprintf(mon.out, "  %-14s 0x%08X\n",
			reg.Name, mon.machine.Bus.Read32(dev.Base+reg.Offset))
	}
}

func (mon *Monitor) cmdStats(args []string) {
	index := 0
	if len(args) > 0 && args[0] == "1" {
		index = 1
	}
	base := uint32(CPMAC0_BASE)
	if index == 1 {
		base = CPMAC1_BASE
	}
	fmt.Fprintf(mon.out, "CPMAC%d statistics\n", index)
	for i, name := range cpmacStatistics {
		val := mon.machine.Bus.Read32(base + CPMAC_RXGOODFRAMES + uint32(i)*4)
		if val != 0 {
			fmt.Fprintf(mon.out, "  %-22s %d\n", name, val)
		}
	}
}

func (mon *Monitor) cmdIRQ() {
	m := mon.machine
	fmt.Fprintf(mon.out, "intmask[0]=0x%08X intmask[1]=0x%08X\n",
		m.AV.intmask[0], m.AV.intmask[1])
	fmt.Fprintf(mon.out, "vector=0x%08X cause=0x%08X line=%v\n",
		regRead(m.AV.intc, INTC_PINTIR*4), m.CPU.Cause(), m.CPU.IRQAsserted())
}

func (mon *Monitor) cmdMAC() {
	for i := 0; i < 2; i++ {
		mac := mon.machine.AV.MACAddress(i)
		fmt.Fprintf(mon.out, "cpmac%d %02x:%02x:%02x:%02x:%02x:%02x\n",
			i, mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
	}
}

func (mon *Monitor) cmdInject(args []string) {
	if len(args) != 2 || (args[0] != "0" && args[0] != "1") {
		fmt.Fprintln(mon.out, "usage: inject <0|1> <hexbytes>")
		return
	}
	index := 0
	if args[0] == "1" {
		index = 1
	}
	frame, err := hex.DecodeString(args[1])
	if err != nil {
		fmt.Fprintf(mon.out, "bad frame: %v\n", err)
		return
	}
	if !mon.machine.AV.CanReceive(index) {
		fmt.Fprintf(mon.out, "cpmac%d has no receive buffer queued\n", index)
		return
	}
	mon.machine.AV.Receive(index, frame)
}

func (mon *Monitor) cmdSave(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(mon.out, "usage: save <path>")
		return
	}
	if err := SaveSnapshotFile(mon.machine.AV, args[0]); err != nil {
		fmt.Fprintf(mon.out, "save failed: %v\n", err)
		return
	}
	fmt.Fprintf(mon.out, "saved %s\n", args[0])
}

func (mon *Monitor) cmdLoad(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(mon.out, "usage: load <path>")
		return
	}
	if err := LoadSnapshotFile(mon.machine.AV, args[0]); err != nil {
		fmt.Fprintf(mon.out, "load failed: %v\n", err)
		return
	}
	fmt.Fprintf(mon.out, "loaded %s\n", args[0])
}

func (mon *Monitor) cmdScript(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(mon.out, "usage: script <file.lua>")
		return
	}
	if err := RunScript(mon.machine, args[0]); err != nil {
		fmt.Fprintf(mon.out, "script failed: %v\n", err)
	}
}
