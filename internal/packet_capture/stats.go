package packet_capture

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/srun-soft/websniffer/internal/flow"
)

// Stats counts what the capture loop saw. Not safe for concurrent use.
type Stats struct {
	Packets      int
	Defragmented int
	Segments     int
	Payloads     int
	ClientHellos int
	TLSHosts     int
	HTTPHosts    int
	Filtered     int
	NewFlows     int
}

func (s *Stats) count(v flow.Verdict) {
	switch v {
	case flow.VerdictTLS:
		s.TLSHosts++
	case flow.VerdictHTTP:
		s.HTTPHosts++
	case flow.VerdictFiltered:
		s.Filtered++
	case flow.VerdictNewFlow:
		s.NewFlows++
	}
}

// Render writes s as a table.
func (s Stats) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"field", "value"})
	table.AppendBulk([][]string{
		{"total packets", strconv.Itoa(s.Packets)},
		{"ip defragmented", strconv.Itoa(s.Defragmented)},
		{"tcp segments", strconv.Itoa(s.Segments)},
		{"tcp payloads", strconv.Itoa(s.Payloads)},
		{"client hellos", strconv.Itoa(s.ClientHellos)},
		{"tls hosts", strconv.Itoa(s.TLSHosts)},
		{"http hosts", strconv.Itoa(s.HTTPHosts)},
		{"filtered hosts", strconv.Itoa(s.Filtered)},
		{"new flows", strconv.Itoa(s.NewFlows)},
	})
	table.Render()
}
