// avalanche.go - TI AR7 (Avalanche) on-chip peripheral complex

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/AvalancheEngine
License: GPLv3 or later
*/

/*
avalanche.go - Peripheral Complex Core

This module implements the register fabric of the TI AR7 system-on-chip:
the dispatch of memory-mapped I/O accesses across the two dozen register
blocks of the "Avalanche" peripheral complex, together with the embedded
logic of the blocks that have behavior (CPMAC ethernet, interrupt
controller, MDIO/PHY, VLYNQ, watchdog, reset and clock controllers).

Core Features:

    Single owned device aggregate holding one backing buffer per block.
    First-match address range dispatch with width adaptation for 8/16/32
    bit accesses.
    Byte-exact register semantics as expected by the guest kernel's
    drivers (cpmac, avalanche intc, mdio, vlynq, watchdog).
    Little-endian word slots throughout; the complex refuses to start on
    a big-endian CPU core.

The complex runs under the host machine's single-threaded cooperative
model: MMIO handlers, the IRQ path and the packet backend receive
callback never execute concurrently. No locking is needed inside the
aggregate.
*/

package main

// CPUEnv is the view of the MIPS core the peripheral complex needs:
// interrupt delivery into CP0 and symbolization of guest addresses for
// diagnostic backtraces.
type CPUEnv interface {
	SetCause(bits uint32)
	ClearCause(bits uint32)
	Interrupt(assert bool)
	BigEndian() bool
	PC() uint32
	RA() uint32
	LookupSymbol(addr uint32) string
}

// PhysMemory is the DMA view of guest physical memory used by the CPMAC
// descriptor engine. All calls complete synchronously.
type PhysMemory interface {
	ReadPhys(addr uint32, buf []byte)
	WritePhys(addr uint32, buf []byte)
	StoreWord(addr uint32, val uint32)
}

// PortIO is the byte-wide I/O port bus the UART windows forward to.
type PortIO interface {
	In8(port uint32) uint8
	Out8(port uint32, val uint8)
}

// NICState is the per-CPMAC network binding: the programmed MAC address
// and the packet backend client frames are exchanged with.
type NICState struct {
	phys [6]byte
	vc   *VLANClient
}

// Avalanche is the whole peripheral complex. One instance is constructed
// at machine power-up and owns every backing store.
type Avalanche struct {
	cpu          CPUEnv
	mem          PhysMemory
	ports        PortIO
	requestReset func()

	nic     [2]NICState
	intmask [2]uint32

	// MDIO transaction scratch and the PHY register file.
	mdioRegaddr uint32
	mdioPhyaddr uint32
	mdioData    uint32
	phy         [1][6]uint16

	// Backing stores, one per block, sized to the visible window.
	adsl      []byte
	bbif      []byte
	atmsar    []byte
	usbmem    []byte
	vlynq0mem []byte

	cpmac    [2][]byte
	emif     []byte
	gpio     []byte
	clock    []byte
	watchdog []byte
	timer0   []byte
	timer1   []byte
	uart     [2][]byte
	usbslave []byte
	reset    []byte
	vlynq    [2][]byte
	dcl      []byte
	mdio     []byte
	ohioWdt  []byte
	intc     []byte

	blocks []ioBlock
}

// ioBlock is one entry of the dispatch table. Blocks without read/write
// overrides are plain backing storage.
type ioBlock struct {
	name  string
	base  uint32
	size  uint32
	trace bool
	mem   func() []byte
	read  func(offset uint32) uint32
	write func(offset uint32, val uint32)
}

// NewAvalanche constructs the peripheral complex and programs the
// published reset defaults. The CPU core must be little-endian.
func NewAvalanche(cpu CPUEnv, mem PhysMemory, ports PortIO, requestReset func()) *Avalanche {
	if cpu != nil && cpu.BigEndian() {
		panic("avalanche: peripheral complex requires a little-endian core")
	}
	av := &Avalanche{
		cpu:          cpu,
		mem:          mem,
		ports:        ports,
		requestReset: requestReset,

		adsl:      make([]byte, ADSL_SIZE),
		bbif:      make([]byte, BBIF_SIZE),
		atmsar:    make([]byte, ATM_SAR_SIZE),
		usbmem:    make([]byte, USB_MEM_SIZE),
		vlynq0mem: make([]byte, VLYNQ0_MEM_SIZE),

		emif:     make([]byte, EMIF_SIZE),
		gpio:     make([]byte, GPIO_SIZE),
		clock:    make([]byte, CLOCK_SIZE),
		watchdog: make([]byte, WATCHDOG_SIZE),
		timer0:   make([]byte, TIMER_SIZE),
		timer1:   make([]byte, TIMER_SIZE),
		usbslave: make([]byte, USB_SLAVE_SIZE),
		reset:    make([]byte, RESET_SIZE),
		dcl:      make([]byte, DCL_SIZE),
		mdio:     make([]byte, MDIO_SIZE),
		ohioWdt:  make([]byte, OHIO_WDT_SIZE),
		intc:     make([]byte, INTC_SIZE),
	}
	av.cpmac[0] = make([]byte, CPMAC_SIZE)
	av.cpmac[1] = make([]byte, CPMAC_SIZE)
	av.uart[0] = make([]byte, UART_SIZE)
	av.uart[1] = make([]byte, UART_SIZE)
	av.vlynq[0] = make([]byte, VLYNQ_SIZE)
	av.vlynq[1] = make([]byte, VLYNQ_SIZE)
	av.buildDispatch()
	av.Reset()
	return av
}

// Reset returns every block to its published power-up defaults.
func (av *Avalanche) Reset() {
	for _, b := range [][]byte{
		av.adsl, av.bbif, av.atmsar, av.usbmem, av.vlynq0mem,
		av.cpmac[0], av.cpmac[1], av.emif, av.gpio, av.clock,
		av.watchdog, av.timer0, av.timer1, av.uart[0], av.uart[1],
		av.usbslave, av.reset, av.vlynq[0], av.vlynq[1], av.dcl,
		av.mdio, av.ohioWdt, av.intc,
	} {
		clear(b)
	}
	av.intmask = [2]uint32{}
	av.mdioRegaddr = 0
	av.mdioPhyaddr = 0
	av.mdioData = 0

	regWrite(av.gpio, 0, GPIO_DEFAULT)
	regWrite(av.uart[0], 5*4, UART_LSR_DEFAULT)
	regWrite(av.dcl, 0, DCL_DEFAULT)
	regWrite(av.mdio, 0*4, MDIO_VER_DEFAULT)
	regWrite(av.mdio, 1*4, MDIO_CONTROL_DEFAULT)
	regWrite(av.mdio, 2*4, MDIO_ALIVE_DEFAULT)

	av.phy[0] = [6]uint16{
		AUTO_NEGOTIATE_EN,
		0x7801 | NWAY_CAPABLE,
		0,
		0,
		NWAY_FD100 | NWAY_HD100 | NWAY_FD10 | NWAY_HD10 | NWAY_AUTO,
		NWAY_AUTO,
	}
}

// ConnectNIC binds a CPMAC instance to a packet backend client.
func (av *Avalanche) ConnectNIC(index int, vc *VLANClient) {
	av.nic[index].vc = vc
}

// MACAddress returns the MAC address the guest programmed into a CPMAC.
func (av *Avalanche) MACAddress(index int) [6]byte {
	return av.nic[index].phys
}

// buildDispatch assembles the first-match address range table. Order
// matters only in that ranges never overlap; the table is kept in
// ascending address order for readability.
func (av *Avalanche) buildDispatch() {
	av.blocks = []ioBlock{
		{name: "adsl", base: ADSL_BASE, size: ADSL_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.adsl }},
		{name: "bbif", base: BBIF_BASE, size: BBIF_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.bbif }},
		{name: "atm sar", base: ATM_SAR_BASE, size: ATM_SAR_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.atmsar }},
		{name: "usb memory", base: USB_MEM_BASE, size: USB_MEM_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.usbmem }},
		{name: "vlynq0 memory", base: VLYNQ0_MEM_BASE, size: VLYNQ0_MEM_SIZE, trace: traceVLYNQ,
			mem:  func() []byte { return av.vlynq0mem },
			read: av.vlynq0MemRead},
		{name: "cpmac0", base: CPMAC0_BASE, size: CPMAC_SIZE, trace: traceCPMAC,
			mem:   func() []byte { return av.cpmac[0] },
			read:  func(off uint32) uint32 { return av.cpmacRead(0, off) },
			write: func(off, val uint32) { av.cpmacWrite(0, off, val) }},
		{name: "emif", base: EMIF_BASE, size: EMIF_SIZE, trace: traceEMIF,
			mem: func() []byte { return av.emif }},
		{name: "gpio", base: GPIO_BASE, size: GPIO_SIZE, trace: traceGPIO,
			mem:  func() []byte { return av.gpio },
			read: av.gpioRead},
		{name: "clock control", base: CLOCK_BASE, size: CLOCK_SIZE, trace: traceCLOCK,
			mem:   func() []byte { return av.clock },
			read:  av.clockRead,
			write: av.clockWrite},
		{name: "watchdog", base: WATCHDOG_BASE, size: WATCHDOG_SIZE, trace: traceWDOG,
			mem:   func() []byte { return av.watchdog },
			write: av.wdtWrite},
		{name: "timer0", base: TIMER0_BASE, size: TIMER_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.timer0 }},
		{name: "timer1", base: TIMER1_BASE, size: TIMER_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.timer1 }},
		{name: "uart0", base: UART0_BASE, size: UART_SIZE, trace: traceUART0,
			mem:   func() []byte { return av.uart[0] },
			read:  av.uartForwardRead,
			write: av.uartForwardWrite0},
		{name: "uart1", base: UART1_BASE, size: UART_SIZE, trace: traceUART1,
			mem:   func() []byte { return av.uart[1] },
			read:  av.uartForwardRead1,
			write: av.uartForwardWrite1},
		{name: "usb slave", base: USB_SLAVE_BASE, size: USB_SLAVE_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.usbslave }},
		{name: "reset control", base: RESET_BASE, size: RESET_SIZE, trace: traceRESET,
			mem:   func() []byte { return av.reset },
			write: av.resetWrite},
		{name: "vlynq0", base: VLYNQ0_BASE, size: VLYNQ_SIZE, trace: traceVLYNQ,
			mem:   func() []byte { return av.vlynq[0] },
			read:  func(off uint32) uint32 { return av.vlynqRead(0, off) },
			write: func(off, val uint32) { av.vlynqWrite(0, off, val) }},
		{name: "device config latch", base: DCL_BASE, size: DCL_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.dcl }},
		{name: "vlynq1", base: VLYNQ1_BASE, size: VLYNQ_SIZE, trace: traceVLYNQ,
			mem:   func() []byte { return av.vlynq[1] },
			read:  func(off uint32) uint32 { return av.vlynqRead(1, off) },
			write: func(off, val uint32) { av.vlynqWrite(1, off, val) }},
		{name: "mdio", base: MDIO_BASE, size: MDIO_SIZE, trace: traceMDIO,
			mem:   func() []byte { return av.mdio },
			read:  av.mdioRead,
			write: av.mdioWrite},
		{name: "ohio wdt", base: OHIO_WDT_BASE, size: OHIO_WDT_SIZE, trace: traceOTHER,
			mem: func() []byte { return av.ohioWdt }},
		{name: "intc", base: INTC_BASE, size: INTC_SIZE, trace: traceINTC,
			mem:   func() []byte { return av.intc },
			read:  av.intcRead,
			write: av.intcWrite},
		{name: "cpmac1", base: CPMAC1_BASE, size: CPMAC_SIZE, trace: traceCPMAC,
			mem:   func() []byte { return av.cpmac[1] },
			read:  func(off uint32) uint32 { return av.cpmacRead(1, off) },
			write: func(off, val uint32) { av.cpmacWrite(1, off, val) }},
	}
}

func (av *Avalanche) findBlock(addr uint32) *ioBlock {
	for i := range av.blocks {
		b := &av.blocks[i]
		if addr >= b.base && addr < b.base+b.size {
			return b
		}
	}
	return nil
}

// ioRead32 is the word-aligned dispatch entry. Only here do accesses
// reach behavioral handlers.
func (av *Avalanche) ioRead32(addr uint32) uint32 {
	if addr&3 != 0 {
		panic("avalanche: misaligned MMIO word read")
	}
	b := av.findBlock(addr)
	if b == nil {
		logout("addr 0x%08x (???) = 0xffffffff\n", addr)
		av.missing()
		return 0xffffffff
	}
	offset := addr - b.base
	if b.read != nil {
		return b.read(offset)
	}
	val := regRead(b.mem(), offset)
	tracef(b.trace, "addr 0x%08x (%s) = 0x%08x\n", addr, b.name, val)
	return val
}

func (av *Avalanche) ioWrite32(addr uint32, val uint32) {
	if addr&3 != 0 {
		panic("avalanche: misaligned MMIO word write")
	}
	b := av.findBlock(addr)
	if b == nil {
		logout("addr 0x%08x (???) = 0x%08x ignored\n", addr, val)
		return
	}
	offset := addr - b.base
	if b.write != nil {
		b.write(offset, val)
		return
	}
	regWrite(b.mem(), offset, val)
	tracef(b.trace, "addr 0x%08x (%s) = 0x%08x\n", addr, b.name, val)
}

func (av *Avalanche) inUARTWindow(addr uint32) bool {
	return (addr >= UART0_BASE && addr < UART0_BASE+UART_SIZE) ||
		(addr >= UART1_BASE && addr < UART1_BASE+UART_SIZE)
}

// IORead adapts 8- and 16-bit reads onto the word dispatcher. Halves are
// selected by the low address bits; byte reads outside the UART windows
// are unexpected but serviced best-effort.
func (av *Avalanche) IORead(addr uint32, size int) uint32 {
	switch size {
	case 4:
		return av.ioRead32(addr)
	case 2:
		val := av.ioRead32(addr &^ 3)
		if addr&2 == 0 {
			val >>= 16
		} else {
			val &= 0xffff
		}
		logout("addr=0x%08x, val=0x%04x\n", addr, val)
		return val
	case 1:
		val := av.ioRead32(addr&^3) & 0xff
		if addr&3 != 0 || !av.inUARTWindow(addr) {
			logout("addr=0x%08x, val=0x%02x\n", addr, val)
			av.unexpected()
		}
		return val
	}
	panic("avalanche: unsupported MMIO read size")
}

// IOWrite adapts 8- and 16-bit writes onto the word dispatcher. Byte
// writes are only expected inside the UART windows.
func (av *Avalanche) IOWrite(addr uint32, size int, val uint32) {
	switch size {
	case 4:
		av.ioWrite32(addr, val)
		return
	case 2:
		logout("addr=0x%08x, val=0x%04x\n", addr, val&0xffff)
		av.unexpected()
		av.ioWrite32(addr&^3, val)
		return
	case 1:
		if addr&3 != 0 || !av.inUARTWindow(addr) {
			logout("addr=0x%08x, val=0x%02x\n", addr, val&0xff)
			av.unexpected()
		}
		av.ioWrite32(addr&^3, val)
		return
	}
	panic("avalanche: unsupported MMIO write size")
}

// gpioRead is plain storage with the reset-button polling noise
// filtered out of the trace.
func (av *Avalanche) gpioRead(offset uint32) uint32 {
	val := regRead(av.gpio, offset)
	if offset == 0 && val == GPIO_DEFAULT {
		return val
	}
	tracef(traceGPIO, "addr 0x%08x (gpio) = 0x%08x\n", GPIO_BASE+offset, val)
	return val
}

// vlynq0MemRead services the VLYNQ0 remote memory window. One word holds
// the PCI device ID of the wireless chip behind the bridge.
func (av *Avalanche) vlynq0MemRead(offset uint32) uint32 {
	val := regRead(av.vlynq0mem, offset)
	if VLYNQ0_MEM_BASE+offset == VLYNQ0_MEM_ID_ADDR {
		val = VLYNQ0_MEM_ID_VALUE
	}
	tracef(traceVLYNQ, "addr 0x%08x (vlynq0 memory) = 0x%08x\n",
		VLYNQ0_MEM_BASE+offset, val)
	return val
}

func (av *Avalanche) uartForwardRead(offset uint32) uint32 {
	val := uint32(av.ports.In8(uartMemToIO(UART0_BASE + offset)))
	tracef(traceUART0, "addr 0x%08x (uart0) = 0x%08x\n", UART0_BASE+offset, val)
	return val
}

func (av *Avalanche) uartForwardRead1(offset uint32) uint32 {
	val := uint32(av.ports.In8(uartMemToIO(UART1_BASE + offset)))
	tracef(traceUART1, "addr 0x%08x (uart1) = 0x%08x\n", UART1_BASE+offset, val)
	return val
}

func (av *Avalanche) uartForwardWrite0(offset uint32, val uint32) {
	tracef(traceUART0, "addr 0x%08x (uart0) = 0x%08x\n", UART0_BASE+offset, val)
	av.ports.Out8(uartMemToIO(UART0_BASE+offset), uint8(val))
}

func (av *Avalanche) uartForwardWrite1(offset uint32, val uint32) {
	tracef(traceUART1, "addr 0x%08x (uart1) = 0x%08x\n", UART1_BASE+offset, val)
	av.ports.Out8(uartMemToIO(UART1_BASE+offset), uint8(val))
}
