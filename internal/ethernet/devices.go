package ethernet

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/google/gopacket/pcap"
	"github.com/olekukonko/tablewriter"
)

// devices 设备

// libpcap PCAP_IF_* flags
const (
	flagLoopback = 0x1
	flagUp       = 0x2
	flagRunning  = 0x4
)

var ErrNoDevice = errors.New("no capture device found")

// All 查找所有设备, 以表格写入 w.
func All(w io.Writer) error {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return fmt.Errorf("find all devices: %w", err)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "IPv4", "IPv6", "Flags"})
	table.AppendBulk(rows(devs))
	table.Render()
	return nil
}

// Default picks the first non-loopback device that is up and has an
// address, the way a sniffer without -i would.
func Default() (string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return "", fmt.Errorf("find all devices: %w", err)
	}
	return pickDefault(devs)
}

func pickDefault(devs []pcap.Interface) (string, error) {
	for _, dev := range devs {
		if dev.Flags&flagLoopback != 0 || len(dev.Addresses) == 0 {
			continue
		}
		if dev.Flags&flagUp == 0 {
			continue
		}
		return dev.Name, nil
	}
	return "", ErrNoDevice
}

func rows(devs []pcap.Interface) [][]string {
	out := make([][]string, 0, len(devs))
	for _, dev := range devs {
		var ipv4, ipv6 net.IP
		for _, addr := range dev.Addresses {
			if addr.IP.To4() != nil {
				if ipv4 == nil {
					ipv4 = addr.IP
				}
				continue
			}
			if ipv6 == nil {
				ipv6 = addr.IP
			}
		}
		out = append(out, []string{dev.Name, ipString(ipv4), ipString(ipv6), flagString(dev.Flags)})
	}
	return out
}

func ipString(ip net.IP) string {
	if ip == nil {
		return "-"
	}
	return ip.String()
}

func flagString(flags uint32) string {
	s := strconv.Itoa(int(flags))
	var names string
	if flags&flagUp != 0 {
		names += " UP"
	}
	if flags&flagRunning != 0 {
		names += " RUNNING"
	}
	if flags&flagLoopback != 0 {
		names += " LOOPBACK"
	}
	return s + names
}
