package flow

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srun-soft/websniffer/internal/record"
	"github.com/srun-soft/websniffer/internal/tlstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	mu     sync.Mutex
	events []record.Website
	err    error
}

func (f *fakeReporter) Report(_ context.Context, w record.Website) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, w)
	return f.err
}

type fakeResolver struct {
	calls []string
}

func (f *fakeResolver) Lookup(_ context.Context, ip string) string {
	f.calls = append(f.calls, ip)
	return "host-" + ip
}

type suffixFilter string

func (s suffixFilter) Match(host string) bool {
	return strings.HasSuffix(host, string(s))
}

func segment(dstPort uint16, payload []byte) Segment {
	return Segment{
		SrcIP:   net.ParseIP("192.168.1.10"),
		DstIP:   net.ParseIP("93.184.216.34"),
		SrcPort: 51000,
		DstPort: dstPort,
		Payload: payload,
	}
}

var identity = record.Identity{Username: "alice", Hostname: "lab-01"}

func newTestClassifier(opts Options) (*Classifier, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	opts.Identity = identity
	opts.Log = log
	return NewClassifier(opts), hook
}

func TestClassifier_TLS(t *testing.T) {
	rep := &fakeReporter{}
	c, _ := newTestClassifier(Options{Reporter: rep})

	seg := segment(PortHTTPS, tlstest.WithSNI("example.com"))
	assert.Equal(t, VerdictTLS, c.Handle(context.Background(), seg))
	assert.True(t, c.Seen(seg.Tuple()))

	require.Len(t, rep.events, 1)
	assert.Equal(t, record.Website{
		Username: "alice",
		Hostname: "lab-01",
		Website:  "example.com",
		DstIPStr: "93.184.216.34",
		SrcIPStr: "192.168.1.10",
		Source:   record.SourceTLS,
	}, rep.events[0])
}

func TestClassifier_HTTP(t *testing.T) {
	rep := &fakeReporter{}
	c, _ := newTestClassifier(Options{Reporter: rep})

	seg := segment(PortHTTP, []byte("GET / HTTP/1.1\r\nHost: foo.test\r\n\r\n"))
	assert.Equal(t, VerdictHTTP, c.Handle(context.Background(), seg))
	assert.True(t, c.Seen(seg.Tuple()))
	require.Len(t, rep.events, 1)
	assert.Equal(t, "foo.test", rep.events[0].Website)
	assert.Equal(t, record.SourceHTTP, rep.events[0].Source)
}

func TestClassifier_ReportsAgainButFallbackOnce(t *testing.T) {
	rep := &fakeReporter{}
	res := &fakeResolver{}
	c, _ := newTestClassifier(Options{Reporter: rep, Resolver: res})
	ctx := context.Background()

	assert.Equal(t, VerdictTLS, c.Handle(ctx, segment(PortHTTPS, tlstest.WithSNI("a.example.com"))))
	assert.Equal(t, VerdictTLS, c.Handle(ctx, segment(PortHTTPS, tlstest.WithSNI("b.example.com"))))
	require.Len(t, rep.events, 2)
	assert.Equal(t, "b.example.com", rep.events[1].Website)

	// Same flow, no hello: the fallback path must not run.
	assert.Equal(t, VerdictSeen, c.Handle(ctx, segment(PortHTTPS, []byte{0x17, 0x03, 0x03, 0x00, 0x01, 0x00})))
	assert.Empty(t, res.calls)
	assert.Equal(t, 1, c.Len())
}

func TestClassifier_FallbackNewFlow(t *testing.T) {
	rep := &fakeReporter{}
	res := &fakeResolver{}
	c, hook := newTestClassifier(Options{Reporter: rep, Resolver: res})
	ctx := context.Background()

	seg := segment(22, []byte("SSH-2.0-OpenSSH_9.6\r\n"))
	assert.Equal(t, VerdictNewFlow, c.Handle(ctx, seg))
	assert.Equal(t, VerdictSeen, c.Handle(ctx, seg))
	assert.Equal(t, []string{"93.184.216.34"}, res.calls)
	assert.Empty(t, rep.events)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "New connection", entry.Message)
	assert.Equal(t, "host-93.184.216.34", entry.Data["resolved"])
}

func TestClassifier_FallbackWhenExtractionFails(t *testing.T) {
	rep := &fakeReporter{}
	c, _ := newTestClassifier(Options{Reporter: rep})
	ctx := context.Background()

	seg := segment(PortHTTPS, []byte{0x16, 0x03, 0x01})
	assert.Equal(t, VerdictNewFlow, c.Handle(ctx, seg))
	assert.Equal(t, VerdictSeen, c.Handle(ctx, seg))

	seg = segment(PortHTTP, []byte("HTTP/1.1 200 OK\r\n\r\n"))
	seg.DstIP = net.ParseIP("10.0.0.2")
	assert.Equal(t, VerdictNewFlow, c.Handle(ctx, seg))
	assert.Empty(t, rep.events)
}

func TestClassifier_ReportUnresolved(t *testing.T) {
	rep := &fakeReporter{}
	c, _ := newTestClassifier(Options{Reporter: rep, Resolver: &fakeResolver{}, ReportUnresolved: true})

	assert.Equal(t, VerdictNewFlow, c.Handle(context.Background(), segment(8443, []byte{0x01})))
	require.Len(t, rep.events, 1)
	assert.Equal(t, "Unknown (IP: host-93.184.216.34)", rep.events[0].Website)
	assert.Equal(t, record.SourceUnresolved, rep.events[0].Source)
}

func TestClassifier_EmptyPayload(t *testing.T) {
	rep := &fakeReporter{}
	res := &fakeResolver{}
	c, _ := newTestClassifier(Options{Reporter: rep, Resolver: res})

	seg := segment(PortHTTPS, nil)
	assert.Equal(t, VerdictEmpty, c.Handle(context.Background(), seg))
	assert.False(t, c.Seen(seg.Tuple()))
	assert.Empty(t, res.calls)
	assert.Empty(t, rep.events)
}

func TestClassifier_ReportErrorIsSwallowed(t *testing.T) {
	rep := &fakeReporter{err: errors.New("connection refused")}
	c, hook := newTestClassifier(Options{Reporter: rep})
	ctx := context.Background()

	assert.Equal(t, VerdictTLS, c.Handle(ctx, segment(PortHTTPS, tlstest.WithSNI("example.com"))))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, rep.err, entry.Data[logrus.ErrorKey])

	// processing continues
	assert.Equal(t, VerdictHTTP, c.Handle(ctx, segment(PortHTTP, []byte("GET / HTTP/1.1\r\nHost: foo.test\r\n\r\n"))))
	assert.Len(t, rep.events, 2)
}

func TestClassifier_Filter(t *testing.T) {
	rep := &fakeReporter{}
	c, _ := newTestClassifier(Options{Reporter: rep, Filter: suffixFilter(".internal")})

	seg := segment(PortHTTPS, tlstest.WithSNI("metrics.internal"))
	assert.Equal(t, VerdictFiltered, c.Handle(context.Background(), seg))
	assert.True(t, c.Seen(seg.Tuple()))
	assert.Empty(t, rep.events)

	assert.Equal(t, VerdictTLS, c.Handle(context.Background(), segment(PortHTTPS, tlstest.WithSNI("example.com"))))
	assert.Len(t, rep.events, 1)
}

func TestClassifier_IsolatedState(t *testing.T) {
	a, _ := newTestClassifier(Options{})
	b, _ := newTestClassifier(Options{})

	seg := segment(PortHTTPS, tlstest.WithSNI("example.com"))
	a.Handle(context.Background(), seg)
	assert.True(t, a.Seen(seg.Tuple()))
	assert.False(t, b.Seen(seg.Tuple()))
}

func TestTuple(t *testing.T) {
	seg := segment(PortHTTPS, nil)
	assert.Equal(t, Tuple{SrcIP: "192.168.1.10", DstIP: "93.184.216.34", DstPort: 443}, seg.Tuple())
	assert.Equal(t, "192.168.1.10->93.184.216.34:443", seg.Tuple().String())

	other := seg
	other.SrcPort = 51001
	assert.Equal(t, seg.Tuple(), other.Tuple())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "tls", VerdictTLS.String())
	assert.Equal(t, "new-flow", VerdictNewFlow.String())
	assert.Equal(t, "verdict(42)", Verdict(42).String())
}
