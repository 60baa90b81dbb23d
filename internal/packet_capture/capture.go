package packet_capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/ip4defrag"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"
	"github.com/srun-soft/websniffer/internal/extract"
	"github.com/srun-soft/websniffer/internal/flow"
)

// Handler receives every TCP segment, one at a time.
type Handler interface {
	Handle(ctx context.Context, seg flow.Segment) flow.Verdict
}

type Options struct {
	// Iface is the live device. Ignored when PcapFile is set.
	Iface    string
	PcapFile string
	BPF      string
	SnapLen  int
	Promisc  bool
	Defrag   bool
}

// Capture reads packets from libpcap and feeds TCP segments to a Handler on
// a single goroutine.
type Capture struct {
	opts      Options
	handler   Handler
	log       logrus.FieldLogger
	defragger *ip4defrag.IPv4Defragmenter
	offline   bool
	stats     Stats
}

func New(opts Options, handler Handler, log logrus.FieldLogger) *Capture {
	return &Capture{
		opts:      opts,
		handler:   handler,
		log:       log.WithField("component", "capture"),
		defragger: ip4defrag.NewIPv4Defragmenter(),
		offline:   opts.PcapFile != "",
	}
}

func (c *Capture) Stats() Stats {
	return c.stats
}

// Run captures until ctx is done or an offline file is exhausted. Errors
// from the capture facility itself end the run.
func (c *Capture) Run(ctx context.Context) error {
	handle, err := c.open()
	if err != nil {
		return err
	}
	defer handle.Close()

	if c.opts.BPF != "" {
		if err = handle.SetBPFFilter(c.opts.BPF); err != nil {
			return fmt.Errorf("BPF filter %q: %w", c.opts.BPF, err)
		}
	}

	var dec gopacket.Decoder
	var ok bool
	decoderName := handle.LinkType().String()
	if dec, ok = gopacket.DecodersByLayerName[decoderName]; !ok {
		return fmt.Errorf("no decoder named %s", decoderName)
	}
	source := gopacket.NewPacketSource(handle, dec)
	source.NoCopy = true
	c.log.WithFields(logrus.Fields{
		"iface": c.opts.Iface,
		"pcap":  c.opts.PcapFile,
		"bpf":   c.opts.BPF,
	}).Info("Starting to read packets")

	for {
		if ctx.Err() != nil {
			return nil
		}
		packet, err := source.NextPacket()
		switch {
		case err == nil:
			c.Process(ctx, packet)
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		default:
			return fmt.Errorf("read packet: %w", err)
		}
	}
}

func (c *Capture) open() (*pcap.Handle, error) {
	// 根据 PcapFile 决定读取离线包还是网卡流量
	if c.offline {
		handle, err := pcap.OpenOffline(c.opts.PcapFile)
		if err != nil {
			return nil, fmt.Errorf("PCAP OpenOffline error: %w", err)
		}
		return handle, nil
	}

	inactive, err := pcap.NewInactiveHandle(c.opts.Iface)
	if err != nil {
		return nil, fmt.Errorf("could not create: %w", err)
	}
	defer inactive.CleanUp()
	if err = inactive.SetSnapLen(c.opts.SnapLen); err != nil {
		return nil, fmt.Errorf("could not set snap length: %w", err)
	} else if err = inactive.SetPromisc(c.opts.Promisc); err != nil {
		return nil, fmt.Errorf("could not set promisc mode: %w", err)
	} else if err = inactive.SetTimeout(time.Second); err != nil {
		return nil, fmt.Errorf("could not set timeout: %w", err)
	}
	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("PCAP Activate error: %w", err)
	}
	return handle, nil
}

// Process hands the TCP segment of packet, if any, to the handler.
func (c *Capture) Process(ctx context.Context, packet gopacket.Packet) {
	c.stats.Packets++

	// defrag IPv4 packet IP碎片整理
	if c.opts.Defrag {
		var ok bool
		if packet, ok = c.defrag(packet); !ok {
			return
		}
	}

	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return
	}
	tcp := tcpLayer.(*layers.TCP)

	var src, dst net.IP
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		src, dst = ip.SrcIP, ip.DstIP
	case *layers.IPv6:
		src, dst = ip.SrcIP, ip.DstIP
	default:
		return
	}

	c.stats.Segments++
	if len(tcp.Payload) > 0 {
		c.stats.Payloads++
		if extract.IsClientHello(tcp.Payload) {
			c.stats.ClientHellos++
		}
	}

	v := c.handler.Handle(ctx, flow.Segment{
		SrcIP:   src,
		DstIP:   dst,
		SrcPort: uint16(tcp.SrcPort),
		DstPort: uint16(tcp.DstPort),
		Payload: tcp.Payload,
	})
	c.stats.count(v)
}

// defrag returns the packet to process, or false while fragments are
// still missing or the fragment was rejected.
func (c *Capture) defrag(packet gopacket.Packet) (gopacket.Packet, bool) {
	ipv4Layer := packet.Layer(layers.LayerTypeIPv4)
	if ipv4Layer == nil {
		return packet, true
	}
	ip4 := ipv4Layer.(*layers.IPv4)
	l := ip4.Length

	var newip4 *layers.IPv4
	var err error
	if c.offline {
		// 离线包使用数据包中的时间戳
		newip4, err = c.defragger.DefragIPv4WithTimestamp(ip4, packet.Metadata().CaptureInfo.Timestamp)
	} else {
		newip4, err = c.defragger.DefragIPv4(ip4)
	}
	if err != nil {
		c.log.WithError(err).Warn("Error while de-fragmenting")
		return nil, false
	} else if newip4 == nil {
		c.log.Debug("Fragment...")
		return nil, false
	}

	if newip4.Length != l {
		c.stats.Defragmented++
		pb, ok := packet.(gopacket.PacketBuilder)
		if !ok {
			c.log.Warn("Not a PacketBuilder")
			return nil, false
		}
		c.log.Debugf("Decoding re-assembled packet: %s", newip4.NextLayerType())
		nextDecoder := newip4.NextLayerType()
		_ = nextDecoder.Decode(newip4.Payload, pb)
	}
	return packet, true
}
