// vlynq_test.go - VLYNQ port controller tests

package main

import "testing"

// TestVLYNQRevision verifies the revision register reads the fixed
// silicon revision on both ports.
func TestVLYNQRevision(t *testing.T) {
	m := newTestMachine(t)

	if got := m.Bus.Read32(0x08611800); got != 0x00010206 {
		t.Fatalf("vlynq0 revision = 0x%08X, expected 0x00010206", got)
	}
	if got := m.Bus.Read32(VLYNQ1_BASE + VLYNQ_REVID); got != 0x00010206 {
		t.Fatalf("vlynq1 revision = 0x%08X, expected 0x00010206", got)
	}
}

// TestVLYNQControlLinkMirror verifies clearing the reset bit brings the
// link up in the status register and setting it drops the link.
func TestVLYNQControlLinkMirror(t *testing.T) {
	m := newTestMachine(t)

	m.Bus.Write32(VLYNQ0_BASE+VLYNQ_CTRL, 0)
	if got := m.Bus.Read32(VLYNQ0_BASE + VLYNQ_STAT); got&1 == 0 {
		t.Fatalf("status = 0x%08X, expected link up", got)
	}
	m.Bus.Write32(VLYNQ0_BASE+VLYNQ_CTRL, 1)
	if got := m.Bus.Read32(VLYNQ0_BASE + VLYNQ_STAT); got&1 != 0 {
		t.Fatalf("status = 0x%08X, expected link down in reset", got)
	}
}

// TestVLYNQPortsIndependent verifies the two ports keep separate state.
func TestVLYNQPortsIndependent(t *testing.T) {
	m := newTestMachine(t)

	m.Bus.Write32(VLYNQ0_BASE+VLYNQ_CTRL, 0)
	if got := m.Bus.Read32(VLYNQ1_BASE + VLYNQ_STAT); got&1 != 0 {
		t.Fatalf("vlynq1 status = 0x%08X, expected untouched", got)
	}
}

// TestVLYNQPlainStorage verifies other offsets are backing storage.
func TestVLYNQPlainStorage(t *testing.T) {
	m := newTestMachine(t)

	m.Bus.Write32(VLYNQ0_BASE+0x1c, 0x0c000000) // Tx address map
	if got := m.Bus.Read32(VLYNQ0_BASE + 0x1c); got != 0x0c000000 {
		t.Fatalf("tx address map = 0x%08X, expected 0x0C000000", got)
	}
}

// TestVLYNQ0MemoryDeviceID verifies the wireless chip's PCI device ID
// shows up at its fixed window address regardless of the store.
func TestVLYNQ0MemoryDeviceID(t *testing.T) {
	m := newTestMachine(t)

	if got := m.Bus.Read32(0x04041000); got != 0x9066104c {
		t.Fatalf("device ID = 0x%08X, expected 0x9066104C", got)
	}
	m.Bus.Write32(0x04041000, 0x12345678)
	if got := m.Bus.Read32(0x04041000); got != 0x9066104c {
		t.Fatalf("device ID = 0x%08X after write, expected 0x9066104C", got)
	}
	// Neighboring words are ordinary storage.
	m.Bus.Write32(0x04041004, 0xcafef00d)
	if got := m.Bus.Read32(0x04041004); got != 0xcafef00d {
		t.Fatalf("neighbor = 0x%08X, expected 0xCAFEF00D", got)
	}
}
