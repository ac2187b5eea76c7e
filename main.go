// main.go - Main entry point for the Avalanche Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/AvalancheEngine
License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/mattn/go-isatty"
)

func boilerPlate() {
	fmt.Println("\nAvalanche Engine - TI AR7 (TNETD73xx) peripheral complex emulator")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/AvalancheEngine")
	fmt.Println("License: GPLv3 or later")
}

func main() {
	boilerPlate()

	var (
		ramSize   string
		pcapPath  string
		flashPath string
		loadPath  string
		script    string
		console   bool
		noMonitor bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&ramSize, "ram", "0x1000000", "SDRAM size in bytes (hex or decimal)")
	flagSet.StringVar(&pcapPath, "pcap", "", "write CPMAC traffic to a pcap capture file")
	flagSet.StringVar(&flashPath, "flash", "", "load a firmware image into the flash window")
	flagSet.StringVar(&loadPath, "load", "", "restore a device snapshot at startup")
	flagSet.StringVar(&script, "script", "", "run a Lua bring-up script, then exit")
	flagSet.BoolVar(&console, "console", false, "attach stdin to the UART0 guest console")
	flagSet.BoolVar(&noMonitor, "no-monitor", false, "do not start the machine monitor")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./avalanche_engine [-ram 0x1000000] [-pcap out.pcap] [-load snap] [-script file.lua] [-console]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	parsedRAM, err := parseUint32Flag(ramSize)
	if err != nil {
		fmt.Printf("Invalid -ram: %v\n", err)
		os.Exit(1)
	}

	var consoleHost *ConsoleHost
	cfg := MachineConfig{
		SDRAMSize: parsedRAM,
		PcapPath:  pcapPath,
	}
	if console {
		consoleHost = NewConsoleHost()
		cfg.Console = consoleHost
	}

	machine, err := NewMachine(cfg)
	if err != nil {
		fmt.Printf("Failed to build machine: %v\n", err)
		os.Exit(1)
	}
	defer machine.Close()

	if consoleHost != nil {
		consoleHost.Bind(machine.UART[0])
		consoleHost.Start()
		defer consoleHost.Stop()
	}

	if flashPath != "" {
		if err := machine.LoadFlashImage(flashPath); err != nil {
			fmt.Printf("Error loading flash image: %v\n", err)
			os.Exit(1)
		}
	}

	if loadPath != "" {
		if err := LoadSnapshotFile(machine.AV, loadPath); err != nil {
			fmt.Printf("Error restoring snapshot: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restored snapshot: %s\n", loadPath)
	}

	if script != "" {
		if err := RunScript(machine, script); err != nil {
			fmt.Printf("Script error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if console {
		// The guest console owns stdin; run until interrupted.
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		return
	}

	if noMonitor {
		return
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Println("stdin is not a terminal, monitor disabled")
		return
	}
	NewMonitor(machine, os.Stdout).Run()
}

func parseUint32Flag(value string) (uint32, error) {
	parsed, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(parsed), nil
}
