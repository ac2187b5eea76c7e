// snapshot_test.go - Device checkpoint save/restore tests

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// mutateState programs recognizable values across the aggregate.
func mutateState(m *Machine) {
	m.Bus.Write32(EMIF_BASE+4, 0x11112222)
	m.Bus.Write32(INTC_BASE+INTC_INTESR1*4, 1<<19)
	m.Bus.Write32(0x086101b0, 0x04030201)
	m.Bus.Write32(0x086101d0, 0x00000005)
	m.Bus.Write32(0x086101d4, 0x09080706)
	m.Bus.Write32(WATCHDOG_BASE+WDT_KICK_LOCK, KICK_LOCK_1ST_STAGE)
}

// TestSnapshotRoundTrip verifies a saved image restores registers,
// interrupt masks, the PHY file and the programmed MAC addresses.
func TestSnapshotRoundTrip(t *testing.T) {
	m := newTestMachine(t)
	mutateState(m)

	var image bytes.Buffer
	if err := m.AV.SaveState(&image); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	m.AV.Reset()
	if got := m.Bus.Read32(EMIF_BASE + 4); got != 0 {
		t.Fatalf("reset did not clear EMIF: 0x%08X", got)
	}

	if err := m.AV.LoadState(&image, 0); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if got := m.Bus.Read32(EMIF_BASE + 4); got != 0x11112222 {
		t.Fatalf("EMIF word = 0x%08X, expected 0x11112222", got)
	}
	if got := m.AV.intmask[0]; got != 1<<19 {
		t.Fatalf("intmask[0] = 0x%08X, expected 0x%08X", got, uint32(1<<19))
	}
	want := [6]byte{0x06, 0x07, 0x08, 0x09, 0x05, 0x01}
	if got := m.AV.MACAddress(0); got != want {
		t.Fatalf("MAC = %02x, expected %02x", got, want)
	}
	if got := m.Bus.Read32(WATCHDOG_BASE + WDT_KICK_LOCK); got&3 != 1 {
		t.Fatalf("kick lock stage = 0x%08X, expected stage 1", got)
	}
}

// TestSnapshotVersionMismatch verifies unknown versions fail with the
// distinct error before touching device state.
func TestSnapshotVersionMismatch(t *testing.T) {
	m := newTestMachine(t)
	mutateState(m)

	var image bytes.Buffer
	if err := m.AV.SaveState(&image); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	err := m.AV.LoadState(&image, 1)
	if !errors.Is(err, ErrSnapshotVersion) {
		t.Fatalf("LoadState(version 1) = %v, expected ErrSnapshotVersion", err)
	}
	if got := m.Bus.Read32(EMIF_BASE + 4); got != 0x11112222 {
		t.Fatalf("failed load touched state: EMIF = 0x%08X", got)
	}
}

// TestSnapshotFileRoundTrip exercises the compressed on-disk form.
func TestSnapshotFileRoundTrip(t *testing.T) {
	m := newTestMachine(t)
	mutateState(m)

	path := filepath.Join(t.TempDir(), "ar7.snap")
	if err := SaveSnapshotFile(m.AV, path); err != nil {
		t.Fatalf("SaveSnapshotFile failed: %v", err)
	}

	m.AV.Reset()
	if err := LoadSnapshotFile(m.AV, path); err != nil {
		t.Fatalf("LoadSnapshotFile failed: %v", err)
	}
	if got := m.Bus.Read32(EMIF_BASE + 4); got != 0x11112222 {
		t.Fatalf("EMIF word = 0x%08X after file restore, expected 0x11112222", got)
	}
}

// TestSnapshotBadMagic verifies corrupted files are rejected.
func TestSnapshotBadMagic(t *testing.T) {
	m := newTestMachine(t)

	path := filepath.Join(t.TempDir(), "bad.snap")
	if err := os.WriteFile(path, []byte("NOPE...."), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := LoadSnapshotFile(m.AV, path); err == nil {
		t.Fatal("bad magic accepted")
	}
}
