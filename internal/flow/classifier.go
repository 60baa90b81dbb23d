package flow

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srun-soft/websniffer/internal/extract"
	"github.com/srun-soft/websniffer/internal/record"
	"github.com/srun-soft/websniffer/internal/utils"
)

const (
	PortHTTP  = 80
	PortHTTPS = 443
)

// Tuple identifies a flow for dedup. The source port is not part of it, so
// reconnects from one client to one service share an entry.
type Tuple struct {
	SrcIP   string
	DstIP   string
	DstPort uint16
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s->%s:%d", t.SrcIP, t.DstIP, t.DstPort)
}

// Segment is one captured TCP segment.
type Segment struct {
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

func (s Segment) Tuple() Tuple {
	return Tuple{SrcIP: s.SrcIP.String(), DstIP: s.DstIP.String(), DstPort: s.DstPort}
}

// Verdict is what Handle did with a segment.
type Verdict int

const (
	VerdictEmpty Verdict = iota
	VerdictTLS
	VerdictHTTP
	VerdictFiltered
	VerdictNewFlow
	VerdictSeen
)

func (v Verdict) String() string {
	switch v {
	case VerdictEmpty:
		return "empty"
	case VerdictTLS:
		return "tls"
	case VerdictHTTP:
		return "http"
	case VerdictFiltered:
		return "filtered"
	case VerdictNewFlow:
		return "new-flow"
	case VerdictSeen:
		return "seen"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

type Reporter interface {
	Report(ctx context.Context, w record.Website) error
}

// Filter drops hosts that must not be reported.
type Filter interface {
	Match(host string) bool
}

type HostResolver interface {
	Lookup(ctx context.Context, ip string) string
}

type Options struct {
	Identity record.Identity
	Reporter Reporter
	// Resolver enables the reverse DNS fallback for flows no extractor
	// could name. Nil disables it.
	Resolver HostResolver
	Filter   Filter
	// ReportUnresolved also reports fallback flows as "Unknown (IP: name)".
	// Needs Resolver.
	ReportUnresolved bool
	Log              logrus.FieldLogger
}

// Classifier turns TCP segments into website reports. The dedup set grows
// for the life of the classifier. Reports are sent on the calling goroutine.
type Classifier struct {
	opts Options
	log  logrus.FieldLogger

	mu   sync.Mutex
	seen map[Tuple]struct{}
}

func NewClassifier(opts Options) *Classifier {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Classifier{
		opts: opts,
		log:  log.WithField("component", "classifier"),
		seen: make(map[Tuple]struct{}),
	}
}

// Handle classifies one segment. Only segments with a payload are looked at.
// A host found by SNI (port 443) or the Host header (port 80) is reported
// every time it is seen and marks the flow; anything else only marks a new
// flow once and, if enabled, resolves its destination.
func (c *Classifier) Handle(ctx context.Context, seg Segment) Verdict {
	if len(seg.Payload) == 0 {
		return VerdictEmpty
	}
	tuple := seg.Tuple()

	switch seg.DstPort {
	case PortHTTPS:
		if host, ok := extract.ExtractSNI(seg.Payload); ok {
			return c.detected(ctx, tuple, host, record.SourceTLS, VerdictTLS)
		}
	case PortHTTP:
		if host, ok := extract.ExtractHTTPHost(seg.Payload); ok {
			return c.detected(ctx, tuple, host, record.SourceHTTP, VerdictHTTP)
		}
	}

	if !c.markNew(tuple) {
		return VerdictSeen
	}
	c.fallback(ctx, tuple)
	return VerdictNewFlow
}

// Seen reports whether t is in the dedup set.
func (c *Classifier) Seen(t Tuple) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[t]
	return ok
}

// Len is the size of the dedup set.
func (c *Classifier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Classifier) mark(t Tuple) {
	c.mu.Lock()
	c.seen[t] = struct{}{}
	c.mu.Unlock()
}

// markNew adds t and reports whether it was absent.
func (c *Classifier) markNew(t Tuple) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[t]; ok {
		return false
	}
	c.seen[t] = struct{}{}
	return true
}

func (c *Classifier) detected(ctx context.Context, t Tuple, host, source string, v Verdict) Verdict {
	c.mark(t)
	domain, suffix := utils.ParseHost(host)
	log := c.log.WithFields(logrus.Fields{
		"category": source,
		"website":  host,
		"domain":   domain,
		"suffix":   suffix,
		"flow":     t.String(),
	})
	if c.opts.Filter != nil && c.opts.Filter.Match(host) {
		log.Debug("Host ignored")
		return VerdictFiltered
	}
	log.Infof("Connecting to: %s (%s)", host, t.DstIP)
	c.report(ctx, log, record.NewWebsite(c.opts.Identity, host, source, t.SrcIP, t.DstIP))
	return v
}

func (c *Classifier) fallback(ctx context.Context, t Tuple) {
	if c.opts.Resolver == nil {
		return
	}
	name := c.opts.Resolver.Lookup(ctx, t.DstIP)
	log := c.log.WithFields(logrus.Fields{
		"category": record.SourceUnresolved,
		"flow":     t.String(),
		"resolved": name,
	})
	log.Debug("New connection")
	if c.opts.ReportUnresolved {
		website := fmt.Sprintf("Unknown (IP: %s)", name)
		c.report(ctx, log, record.NewWebsite(c.opts.Identity, website, record.SourceUnresolved, t.SrcIP, t.DstIP))
	}
}

// report never fails the caller: a lost report is logged and dropped.
func (c *Classifier) report(ctx context.Context, log logrus.FieldLogger, w record.Website) {
	if c.opts.Reporter == nil {
		return
	}
	if err := c.opts.Reporter.Report(ctx, w); err != nil {
		log.WithError(err).Error("Error reporting to server")
	}
}
