// trace.go - Per-subsystem diagnostic tracing for the peripheral complex

package main

import (
	"fmt"
	"os"
	"runtime"
)

// Set flags to true to enable debug output for a subsystem. These are
// compile-time constants so disabled traces cost nothing on the MMIO
// fast path.
const (
	traceCLOCK = false
	traceCPMAC = true
	traceEMIF  = false
	traceGPIO  = false
	traceINTC  = false
	traceMDIO  = false // polled by the guest, so very noisy
	traceRESET = false
	traceUART0 = false
	traceUART1 = false
	traceVLYNQ = false
	traceWDOG  = false
	traceOTHER = false
	traceRXTX  = true
)

// logout writes one diagnostic line to stderr, prefixed with the
// emulated machine tag and the calling function.
func logout(format string, args ...interface{}) {
	name := "?"
	if pc, _, _, ok := runtime.Caller(1); ok {
		name = shortFuncName(runtime.FuncForPC(pc).Name())
	}
	fmt.Fprintf(os.Stderr, "AR7\t%-24s"+format, append([]interface{}{name}, args...)...)
}

// tracef is logout gated by a subsystem flag.
func tracef(flag bool, format string, args ...interface{}) {
	if !flag {
		return
	}
	name := "?"
	if pc, _, _, ok := runtime.Caller(1); ok {
		name = shortFuncName(runtime.FuncForPC(pc).Name())
	}
	fmt.Fprintf(os.Stderr, "AR7\t%-24s"+format, append([]interface{}{name}, args...)...)
}

func shortFuncName(full string) string {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == '/' {
			return full[i+1:]
		}
	}
	return full
}

// unexpected marks an access the guest driver is not supposed to make.
// The guest-side backtrace helps attribute the access to a driver path.
func (av *Avalanche) unexpected() {
	logout("unexpected, %s!!!\n", av.backtrace())
}

// missing marks emulation the guest asked for that is not implemented.
func (av *Avalanche) missing() {
	logout("missing, %s!!!\n", av.backtrace())
}

// backtrace symbolizes the guest PC and return address for diagnostics.
func (av *Avalanche) backtrace() string {
	if av.cpu == nil {
		return "[no cpu]"
	}
	return fmt.Sprintf("[%s][%s]",
		av.cpu.LookupSymbol(av.cpu.PC()),
		av.cpu.LookupSymbol(av.cpu.RA()))
}

// dump renders up to 25 bytes of a frame for RXTX traces.
func dump(buf []byte) string {
	n := len(buf)
	if n > 25 {
		n = 25
	}
	s := ""
	for i := 0; i < n; i++ {
		s += fmt.Sprintf(" %02x", buf[i])
	}
	return s
}
