// machine.go - Reference machine wiring for the peripheral complex

/*
machine.go - Machine Assembly

Builds the reference AR7 machine around the peripheral complex: sparse
guest RAM, the two MMIO dispatch windows, two 16450 UARTs on the I/O
port space, the network segment joining both CPMACs, and the harness
CPU stub standing in for the MIPS core. The stub records CP0 state so
the monitor and the tests can observe interrupt delivery without a
real guest running.
*/

package main

import (
	"fmt"
	"os"
)

// HarnessCPU stands in for the MIPS core when the complex is driven by
// the monitor or by tests instead of by guest code.
type HarnessCPU struct {
	cause     uint32
	irqLine   bool
	bigendian bool
}

func (c *HarnessCPU) SetCause(bits uint32)   { c.cause |= bits }
func (c *HarnessCPU) ClearCause(bits uint32) { c.cause &^= bits }
func (c *HarnessCPU) Interrupt(assert bool)  { c.irqLine = assert }
func (c *HarnessCPU) BigEndian() bool        { return c.bigendian }
func (c *HarnessCPU) PC() uint32             { return 0 }
func (c *HarnessCPU) RA() uint32             { return 0 }

func (c *HarnessCPU) LookupSymbol(addr uint32) string {
	return fmt.Sprintf("0x%08x", addr)
}

// Cause returns the recorded CP0_Cause image.
func (c *HarnessCPU) Cause() uint32 { return c.cause }

// IRQAsserted reports the state of hardware interrupt line 0.
func (c *HarnessCPU) IRQAsserted() bool { return c.irqLine }

// MachineConfig selects the memory sizing and optional capture output.
type MachineConfig struct {
	SDRAMSize uint32
	PcapPath  string
	Console   CharDev // UART0 output sink; nil for discard
	Aux       CharDev // UART1 output sink; nil for discard
}

// Machine is the assembled reference system.
type Machine struct {
	CPU   *HarnessCPU
	Bus   *MachineBus
	AV    *Avalanche
	Ports *IOPortSpace
	UART  [2]*UART16450
	Hub   *VLANHub

	pcap       *PcapTap
	resetCount int
}

// NewMachine wires up the reference machine. The peripheral complex is
// registered on both of its guest physical windows.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.SDRAMSize == 0 {
		cfg.SDRAMSize = SDRAM_SIZE
	}
	m := &Machine{
		CPU:   &HarnessCPU{},
		Bus:   NewMachineBus(),
		Ports: NewIOPortSpace(),
		Hub:   NewVLANHub(),
	}

	m.Bus.AddRAM("boot page", BOOT_PAGE_BASE, BOOT_PAGE_SIZE)
	m.Bus.AddRAM("flash", FLASH_BASE, FLASH_SIZE)
	m.Bus.AddRAM("sdram", SDRAM_BASE, cfg.SDRAMSize)
	m.Bus.AddRAM("rom", ROM_BASE, ROM_SIZE)

	m.AV = NewAvalanche(m.CPU, m.Bus, m.Ports, m.requestReset)
	m.Bus.MapIO(IO_WINDOW0_BASE, IO_WINDOW0_SIZE, m.AV)
	m.Bus.MapIO(IO_WINDOW1_BASE, IO_WINDOW1_SIZE, m.AV)

	m.serialInit(cfg)
	m.nicInit()

	if cfg.PcapPath != "" {
		tap, err := NewPcapTap(cfg.PcapPath)
		if err != nil {
			return nil, fmt.Errorf("opening capture file: %w", err)
		}
		m.pcap = tap
		m.Hub.AddTap(tap.Tap)
	}
	return m, nil
}

// serialInit attaches both 16450s to the port space, wired to raise the
// serial interrupt channels through the controller.
func (m *Machine) serialInit(cfg MachineConfig) {
	m.UART[0] = NewUART16450(uartMemToIO(UART0_BASE), IRQ_SERIAL0,
		m.AV.AssertLine, cfg.Console)
	m.UART[1] = NewUART16450(uartMemToIO(UART1_BASE), IRQ_SERIAL1,
		m.AV.AssertLine, cfg.Aux)
	m.Ports.Attach(m.UART[0])
	m.Ports.Attach(m.UART[1])
}

// nicInit joins both CPMACs on the shared segment.
func (m *Machine) nicInit() {
	for i := 0; i < 2; i++ {
		index := i
		vc := m.Hub.NewClient(fmt.Sprintf("cpmac%d", index),
			func(buf []byte) { m.AV.Receive(index, buf) },
			func() bool { return m.AV.CanReceive(index) })
		m.AV.ConnectNIC(index, vc)
	}
}

// requestReset is the machine-level reset hook the reset controller
// invokes. A real host defers the reset to its main loop; the harness
// just records it so the monitor or a test can act on it.
func (m *Machine) requestReset() {
	m.resetCount++
	logout("system reset requested\n")
}

// ResetCount reports how many system resets the guest requested.
func (m *Machine) ResetCount() int { return m.resetCount }

// LoadFlashImage copies a firmware image into the flash window.
func (m *Machine) LoadFlashImage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) > FLASH_SIZE {
		return fmt.Errorf("flash image %s is %d bytes, window is %d",
			path, len(data), FLASH_SIZE)
	}
	m.Bus.WritePhys(FLASH_BASE, data)
	return nil
}

// Close releases host resources (the capture file).
func (m *Machine) Close() error {
	if m.pcap != nil {
		return m.pcap.Close()
	}
	return nil
}
