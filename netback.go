// netback.go - Packet backend: VLAN hub and capture tap

/*
netback.go - Packet Backend

Frames leaving a CPMAC are handed to a VLANClient; frames arriving from
the outside world are pushed into a client's receive callback. The hub
joins all clients on one segment the way a dumb switch would: a frame
sent by one client is offered to every other client that currently has
receive buffers. An optional tap observes every frame on the segment
and writes it to a pcap capture file for offline inspection.
*/

package main

import (
	"os"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

// VLANClient is one port on the emulated segment.
type VLANClient struct {
	hub        *VLANHub
	name       string
	receive    func(buf []byte)
	canReceive func() bool
}

// Send puts one frame on the segment. The sender never hears its own
// frames back.
func (c *VLANClient) Send(buf []byte) {
	c.hub.broadcast(c, buf)
}

// VLANHub is the shared segment.
type VLANHub struct {
	clients []*VLANClient
	taps    []func(buf []byte)
}

func NewVLANHub() *VLANHub {
	return &VLANHub{}
}

// NewClient attaches a port to the segment. canReceive may be nil for
// ports that are always ready.
func (h *VLANHub) NewClient(name string, receive func(buf []byte), canReceive func() bool) *VLANClient {
	c := &VLANClient{hub: h, name: name, receive: receive, canReceive: canReceive}
	h.clients = append(h.clients, c)
	return c
}

// AddTap registers an observer for every frame on the segment.
func (h *VLANHub) AddTap(tap func(buf []byte)) {
	h.taps = append(h.taps, tap)
}

func (h *VLANHub) broadcast(from *VLANClient, buf []byte) {
	for _, tap := range h.taps {
		tap(buf)
	}
	for _, c := range h.clients {
		if c == from || c.receive == nil {
			continue
		}
		if c.canReceive != nil && !c.canReceive() {
			tracef(traceRXTX, "%s not ready, frame dropped\n", c.name)
			continue
		}
		c.receive(buf)
	}
}

// PcapTap writes segment traffic to a pcap file.
type PcapTap struct {
	file   *os.File
	writer *pcapgo.Writer
}

// NewPcapTap creates (or truncates) a capture file with an ethernet
// link-layer header.
func NewPcapTap(path string) (*PcapTap, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, err
	}
	return &PcapTap{file: f, writer: w}, nil
}

// Tap records one frame. Capture errors only surface as traces; the
// segment never stalls on the observer.
func (t *PcapTap) Tap(buf []byte) {
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(buf),
		Length:        len(buf),
	}
	if err := t.writer.WritePacket(ci, buf); err != nil {
		logout("pcap write failed: %v\n", err)
	}
}

func (t *PcapTap) Close() error {
	return t.file.Close()
}
