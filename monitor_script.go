// monitor_script.go - Lua bindings for scripted bring-up

/*
monitor_script.go - Bring-up Scripting

Exposes the machine to Lua so register pokes and descriptor setups can
be replayed from a script instead of typed into the monitor:

    write32(0x08610600, 0x14000000)  -- kick TX channel 0
    v = read32(0x08610180)           -- MAC_IN_VECTOR
    inject(0, "ffffffffffff...")     -- receive a frame on cpmac0
    print(string.format("vector %08x", v))
*/

package main

import (
	"encoding/hex"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// RunScript executes a Lua file with the machine bindings installed.
func RunScript(m *Machine, path string) error {
	L := lua.NewState()
	defer L.Close()
	registerMachineBindings(L, m)
	return L.DoFile(path)
}

func registerMachineBindings(L *lua.LState, m *Machine) {
	L.SetGlobal("read32", L.NewFunction(func(L *lua.LState) int {
		addr := uint32(L.CheckInt64(1))
		L.Push(lua.LNumber(m.Bus.Read32(addr)))
		return 1
	}))
	L.SetGlobal("write32", L.NewFunction(func(L *lua.LState) int {
		addr := uint32(L.CheckInt64(1))
		val := uint32(L.CheckInt64(2))
		m.Bus.Write32(addr, val)
		return 0
	}))
	L.SetGlobal("read8", L.NewFunction(func(L *lua.LState) int {
		addr := uint32(L.CheckInt64(1))
		L.Push(lua.LNumber(m.Bus.Read8(addr)))
		return 1
	}))
	L.SetGlobal("write8", L.NewFunction(func(L *lua.LState) int {
		addr := uint32(L.CheckInt64(1))
		val := uint8(L.CheckInt64(2))
		m.Bus.Write8(addr, val)
		return 0
	}))
	L.SetGlobal("inject", L.NewFunction(func(L *lua.LState) int {
		index := int(L.CheckInt64(1))
		frame, err := hex.DecodeString(L.CheckString(2))
		if err != nil {
			L.RaiseError("bad frame: %v", err)
			return 0
		}
		if index != 0 && index != 1 {
			L.RaiseError("cpmac index must be 0 or 1")
			return 0
		}
		m.AV.Receive(index, frame)
		return 0
	}))
	L.SetGlobal("can_receive", L.NewFunction(func(L *lua.LState) int {
		index := int(L.CheckInt64(1))
		L.Push(lua.LBool(m.AV.CanReceive(index)))
		return 1
	}))
	L.SetGlobal("irq_asserted", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(m.CPU.IRQAsserted()))
		return 1
	}))
	L.SetGlobal("mac", L.NewFunction(func(L *lua.LState) int {
		index := int(L.CheckInt64(1))
		addr := m.AV.MACAddress(index)
		L.Push(lua.LString(fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
			addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])))
		return 1
	}))
}
