// Package capture writes every frame a router reads or writes to a pcap file
// so standard packet tools can inspect a session.
//
// Each frame becomes one Ethernet/IP/TCP packet on the service port. The
// local side always uses localMAC, which is how ReadFrames recovers the
// direction. Endpoints without an IP address are written as 0.0.0.0.
package capture

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/danmuck/syndesi/internal/protocol"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// SnapLen covers the largest frame plus link headers.
const SnapLen = 1 << 18

var (
	localMAC = net.HardwareAddr{0x02, 0x53, 0x44, 0x00, 0x00, 0x01}
	peerMAC  = net.HardwareAddr{0x02, 0x53, 0x44, 0x00, 0x00, 0x02}
)

// Direction is relative to the capturing node.
type Direction uint8

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Tap receives the wire image of every frame.
type Tap interface {
	Record(dir Direction, peer address.Address, wire []byte) error
}

// Writer is a Tap backed by a pcap stream.
type Writer struct {
	mu     sync.Mutex
	out    *pcapgo.Writer
	closer io.Closer
	now    func() time.Time
	seqIn  uint32
	seqOut uint32
	count  int
}

// Create truncates path and writes the pcap file header.
func Create(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: create pcap: %w", err)
	}
	w, err := NewWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	w.closer = file
	return w, nil
}

// NewWriter writes the pcap file header to dst.
func NewWriter(dst io.Writer) (*Writer, error) {
	out := pcapgo.NewWriter(dst)
	if err := out.WriteFileHeader(SnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("capture: write pcap header: %w", err)
	}
	return &Writer{out: out, now: time.Now, seqIn: 1, seqOut: 1}, nil
}

// Record serialises one frame. Frames too large for an IP packet are
// rejected with an error and not written.
func (w *Writer) Record(dir Direction, peer address.Address, wire []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	localPort := layers.TCPPort(protocol.DefaultPort)
	peerPort := layers.TCPPort(peer.Port)
	if peerPort == 0 {
		peerPort = localPort
	}

	eth := &layers.Ethernet{SrcMAC: localMAC, DstMAC: peerMAC}
	tcp := &layers.TCP{SrcPort: localPort, DstPort: peerPort, ACK: true, PSH: true, Window: 65535}
	if dir == In {
		eth.SrcMAC, eth.DstMAC = peerMAC, localMAC
		tcp.SrcPort, tcp.DstPort = peerPort, localPort
		tcp.Seq, tcp.Ack = w.seqIn, w.seqOut
	} else {
		tcp.Seq, tcp.Ack = w.seqOut, w.seqIn
	}

	var network gopacket.SerializableLayer
	ip, _ := peer.IP()
	if ip.Is6() {
		eth.EthernetType = layers.EthernetTypeIPv6
		v6 := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolTCP, SrcIP: net.IPv6zero, DstIP: ip.AsSlice()}
		if dir == In {
			v6.SrcIP, v6.DstIP = v6.DstIP, v6.SrcIP
		}
		_ = tcp.SetNetworkLayerForChecksum(v6)
		network = v6
	} else {
		peerIP := net.IPv4zero.To4()
		if ip.Is4() {
			peerIP = ip.AsSlice()
		}
		eth.EthernetType = layers.EthernetTypeIPv4
		v4 := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: net.IPv4zero.To4(), DstIP: peerIP}
		if dir == In {
			v4.SrcIP, v4.DstIP = v4.DstIP, v4.SrcIP
		}
		_ = tcp.SetNetworkLayerForChecksum(v4)
		network = v4
	}

	if len(wire)+60 > 0xFFFF {
		return fmt.Errorf("capture: frame of %d bytes does not fit an IP packet", len(wire))
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, network, tcp, gopacket.Payload(wire)); err != nil {
		return fmt.Errorf("capture: serialize packet: %w", err)
	}
	data := buf.Bytes()
	err := w.out.WritePacket(gopacket.CaptureInfo{
		Timestamp:     w.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
	if err != nil {
		return fmt.Errorf("capture: write packet: %w", err)
	}
	if dir == In {
		w.seqIn += uint32(len(wire))
	} else {
		w.seqOut += uint32(len(wire))
	}
	w.count++
	return nil
}

// Count is the number of frames written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the file opened by Create.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}
