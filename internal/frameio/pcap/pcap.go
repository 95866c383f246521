// Package pcap wires frameio's Opener and Enumerator onto gopacket/pcap,
// the same capture library the teacher repo uses for offline sFlow decode
// (telemetry/flow-enricher) and encoder-side packet construction (pim).
package pcap

import (
	"fmt"
	"net"
	"time"

	"github.com/gopacket/gopacket/pcap"

	"github.com/malbeclabs/l2switch/internal/frameio"
	"github.com/malbeclabs/l2switch/internal/mac"
)

const (
	snaplen    = 65536
	promiscOn  = true
	readBudget = 250 * time.Millisecond
)

// Opener opens live NICs via libpcap.
type Opener struct{}

// Open implements frameio.Opener.
func (Opener) Open(name string) (frameio.Handle, error) {
	h, err := pcap.OpenLive(name, snaplen, promiscOn, readBudget)
	if err != nil {
		return nil, fmt.Errorf("pcap: open %s: %w", name, err)
	}
	return &handle{name: name, h: h}, nil
}

type handle struct {
	name string
	h    *pcap.Handle
}

func (hd *handle) Recv() ([]byte, error) {
	data, ci, err := hd.h.ReadPacketData()
	if err != nil {
		if err == pcap.NextErrorTimeoutExpired {
			return nil, frameio.ErrTransient
		}
		return nil, fmt.Errorf("pcap: recv on %s: %w", hd.name, err)
	}
	if ci.CaptureLength != ci.Length {
		panic(fmt.Sprintf("pcap: truncated capture on %s: captured %d of %d bytes", hd.name, ci.CaptureLength, ci.Length))
	}
	if len(data) == 0 {
		return nil, frameio.ErrTransient
	}
	return data, nil
}

func (hd *handle) Send(b []byte) error {
	if err := hd.h.WritePacketData(b); err != nil {
		return fmt.Errorf("pcap: send on %s: %w", hd.name, err)
	}
	return nil
}

func (hd *handle) Close() error {
	hd.h.Close()
	return nil
}

// Enumerator lists live NICs via libpcap's device enumeration, cross
// referenced against net.Interfaces for the hardware address (libpcap does
// not reliably report MACs on every platform).
type Enumerator struct{}

// ListDevices implements frameio.Enumerator.
func (Enumerator) ListDevices() ([]frameio.Device, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("pcap: enumerate devices: %w", err)
	}

	hwaddrs := map[string]mac.Addr{}
	if ifaces, err := net.Interfaces(); err == nil {
		for _, ifi := range ifaces {
			if len(ifi.HardwareAddr) == mac.Size {
				hwaddrs[ifi.Name] = mac.Parse(ifi.HardwareAddr)
			}
		}
	}

	out := make([]frameio.Device, 0, len(devs))
	for _, d := range devs {
		loopback := hasLoopbackFlag(d) || hwaddrs[d.Name] == (mac.Addr{})
		out = append(out, frameio.Device{
			Name:     d.Name,
			Loopback: loopback,
			HWAddr:   hwaddrs[d.Name],
		})
	}
	return out, nil
}

// hasLoopbackFlag reports the platform loopback bit when libpcap's
// enumeration exposes one. Some platform builds of gopacket/pcap surface an
// Interface.Flags bitmask without a named loopback constant, so this checks
// the conventional low bit libpcap sets for PCAP_IF_LOOPBACK.
func hasLoopbackFlag(d pcap.Interface) bool {
	const pcapIfLoopback = 0x1
	return d.Flags&pcapIfLoopback != 0
}
