// reset.go - Reset controller

package main

// resetDevices names the bit positions of the peripheral reset register.
// 0 = held in reset (disabled), 1 = running.
var resetDevices = [32]string{
	"uart0", "uart1", "i2c", "timer0",
	"timer1", "reserved05", "gpio", "adsl",
	"usb", "atm", "reserved10", "vdma",
	"fser", "reserved13", "reserved14", "reserved15",
	"vlynq1", "cpmac0", "mcdma", "bist",
	"vlynq0", "cpmac1", "mdio", "dsp",
	"reserved24", "reserved25", "ephy", "reserved27",
	"reserved28", "reserved29", "reserved30", "reserved31",
}

// resetWrite traces peripheral reset transitions at offset 0 and
// requests a full system reset on a write to offset 4.
func (av *Avalanche) resetWrite(offset uint32, val uint32) {
	switch offset {
	case 0:
		if traceRESET {
			oldval := regRead(av.reset, 0)
			changed := val ^ oldval
			enabled := changed & val
			for i := uint32(0); i < 32; i++ {
				if changed&(1<<i) != 0 {
					state := "disabled"
					if enabled&(1<<i) != 0 {
						state = "enabled"
					}
					tracef(traceRESET, "reset %s %s\n", state, resetDevices[i])
				}
			}
		}
	case 4:
		tracef(traceRESET, "reset\n")
		if av.requestReset != nil {
			av.requestReset()
		}
	default:
		tracef(traceRESET, "reset[0x%02x]=0x%08x\n", offset, val)
	}
	regWrite(av.reset, offset, val)
}
