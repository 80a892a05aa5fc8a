package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Record is one captured frame.
type Record struct {
	Time      time.Time
	Direction Direction
	Peer      netip.AddrPort
	Wire      []byte
	// Frame is nil when Wire does not parse; Err says why.
	Frame *frame.Frame
	Err   error
}

// ReadFrames decodes every frame from a pcap written by Writer.
func ReadFrames(path string, lim frame.Limits) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open pcap: %w", err)
	}
	defer file.Close()
	return Decode(file, lim)
}

// Decode reads frames from a pcap stream. Packets without a TCP payload are
// skipped.
func Decode(src io.Reader, lim frame.Limits) ([]Record, error) {
	r, err := pcapgo.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("capture: read pcap header: %w", err)
	}
	var out []Record
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("capture: read packet: %w", err)
		}
		pkt := gopacket.NewPacket(data, r.LinkType(), gopacket.Default)
		tcpLayer, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if !ok || len(tcpLayer.Payload) == 0 {
			continue
		}
		rec := Record{Time: ci.Timestamp, Wire: append([]byte(nil), tcpLayer.Payload...)}

		peerPort := uint16(tcpLayer.DstPort)
		rec.Direction = Out
		if eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); ok && bytes.Equal(eth.DstMAC, localMAC) {
			rec.Direction = In
			peerPort = uint16(tcpLayer.SrcPort)
		}
		if netLayer := pkt.NetworkLayer(); netLayer != nil {
			src, dst := netLayer.NetworkFlow().Endpoints()
			ep := dst
			if rec.Direction == In {
				ep = src
			}
			if ip, ok := netip.AddrFromSlice(ep.Raw()); ok {
				rec.Peer = netip.AddrPortFrom(ip.Unmap(), peerPort)
			}
		}
		rec.Frame, rec.Err = frame.Parse(rec.Wire, lim)
		out = append(out, rec)
	}
}
