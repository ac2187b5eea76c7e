// console_host.go - Host terminal adapter for the guest serial console

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ConsoleHost pumps raw stdin bytes into a UART's receive buffer and
// writes UART output to stdout. Only instantiated in main.go for
// interactive use — never in tests.
type ConsoleHost struct {
	uart         *UART16450
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State
}

// WriteByte implements CharDev: UART output goes straight to stdout.
func (h *ConsoleHost) WriteByte(b byte) {
	os.Stdout.Write([]byte{b})
}

// NewConsoleHost creates a host adapter for the given UART.
func NewConsoleHost() *ConsoleHost {
	return &ConsoleHost{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Bind attaches the adapter to the UART it feeds.
func (h *ConsoleHost) Bind(uart *UART16450) {
	h.uart = uart
}

// Start sets stdin to raw non-blocking mode and begins pumping bytes in
// a goroutine. Refuses to start when stdin is not a terminal. Call
// Stop() to restore stdin.
func (h *ConsoleHost) Start() {
	h.fd = int(os.Stdin.Fd())
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(os.Stderr, "console_host: stdin is not a terminal, console disabled")
		close(h.done)
		return
	}

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "console_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				b := buf[0]
				// Raw mode sends CR for Enter; the guest console
				// expects CR, so pass it through unchanged.
				if h.uart != nil && h.uart.CanEnqueue() {
					h.uart.EnqueueByte(b)
				}
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// Stop terminates the pump goroutine and restores stdin.
func (h *ConsoleHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}
