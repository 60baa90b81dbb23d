package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/srun-soft/websniffer/configs"
	"github.com/srun-soft/websniffer/internal/ethernet"
	"github.com/srun-soft/websniffer/internal/flow"
	"github.com/srun-soft/websniffer/internal/hostfilter"
	"github.com/srun-soft/websniffer/internal/packet_capture"
	"github.com/srun-soft/websniffer/internal/report"
)

// flagKeys maps sniff flags to config keys.
var flagKeys = map[string]string{
	"iface":             configs.KeyIface,
	"pcap":              configs.KeyPcapFile,
	"bpf":               configs.KeyBPF,
	"snaplen":           configs.KeySnapLen,
	"promisc":           configs.KeyPromisc,
	"defrag":            configs.KeyDefrag,
	"debug":             configs.KeyDebug,
	"log-file":          configs.KeyLogFile,
	"server-url":        configs.KeyServerURL,
	"report-timeout":    configs.KeyReportTimeout,
	"resolve":           configs.KeyResolve,
	"resolve-timeout":   configs.KeyResolveTimeout,
	"report-unresolved": configs.KeyReportUnresolved,
	"ignore-file":       configs.KeyIgnoreFile,
}

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Capture traffic and report visited websites",
	Long: `
Capture TCP traffic and report every website found in a TLS Client Hello
(port 443) or an HTTP Host header (port 80) to the backend.

Examples:
  websniffer sniff                              # default device, backend from .env or environment
  websniffer sniff -i eth0 --defrag             # reassemble IPv4 fragments on eth0
  websniffer sniff -r trace.pcap --debug        # replay a capture file
  websniffer sniff --resolve --report-unresolved
`,
	Args: cobra.NoArgs,
	RunE: runSniff,
}

func init() {
	addSniffFlags(sniffCmd.Flags())
}

func addSniffFlags(fs *pflag.FlagSet) {
	fs.StringP("iface", "i", "", "capture device, the first usable one when empty")
	fs.StringP("pcap", "r", "", "read packets from a pcap file instead of a device")
	fs.String("bpf", "tcp", "BPF filter")
	fs.Int("snaplen", 65536, "snapshot length")
	fs.Bool("promisc", true, "promiscuous mode")
	fs.Bool("defrag", false, "reassemble IPv4 fragments")
	fs.Bool("debug", false, "debug logging")
	fs.String("log-file", "", "also write logs to this rotated file")
	fs.String("server-url", "", "full report URL, overrides the backend settings")
	fs.Duration("report-timeout", report.DefaultTimeout, "timeout of one report request")
	fs.Bool("resolve", false, "reverse resolve destinations no host was found for")
	fs.Duration("resolve-timeout", 2*time.Second, "timeout of one reverse lookup")
	fs.Bool("report-unresolved", false, "report resolved fallback flows as Unknown (IP: name)")
	fs.String("ignore-file", "", "file of host patterns that are never reported")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig resolves flags, environment and the dotenv file into a Config.
// An explicitly given env file must exist.
func loadConfig(fs *pflag.FlagSet, envFile string) (*configs.Config, error) {
	v := configs.NewViper()
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}
	if err := configs.ReadEnvFile(v, envFile, fs.Changed("env-file")); err != nil {
		return nil, err
	}
	return configs.Load(v)
}

func runSniff(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Flags(), envFile)
	if err != nil {
		return err
	}
	log := configs.InitLog(configs.LogOptions{
		Debug:      cfg.Debug,
		File:       cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	})

	classifier, err := newClassifier(cfg, log)
	if err != nil {
		return err
	}

	if cfg.Iface == "" && cfg.PcapFile == "" {
		if cfg.Iface, err = ethernet.Default(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	capture := packet_capture.New(packet_capture.Options{
		Iface:    cfg.Iface,
		PcapFile: cfg.PcapFile,
		BPF:      cfg.BPF,
		SnapLen:  cfg.SnapLen,
		Promisc:  cfg.Promisc,
		Defrag:   cfg.Defrag,
	}, classifier, log)
	runErr := capture.Run(ctx)

	capture.Stats().Render(os.Stdout)
	log.WithFields(logrus.Fields{
		"component": "sniff",
		"flows":     classifier.Len(),
	}).Info("Capture stopped")

	if runErr != nil {
		return fmt.Errorf("capture: %w", runErr)
	}
	return nil
}

func newClassifier(cfg *configs.Config, log *logrus.Logger) (*flow.Classifier, error) {
	id := configs.CurrentIdentity()
	client := report.NewClient(cfg.ServerURL, cfg.ReportTimeout, log)
	log.WithFields(logrus.Fields{
		"component": "sniff",
		"url":       client.URL(),
		"username":  id.Username,
		"hostname":  id.Hostname,
	}).Info("Reporting websites")

	opts := flow.Options{
		Identity:         id,
		Reporter:         client,
		ReportUnresolved: cfg.ReportUnresolved,
		Log:              log,
	}
	if cfg.IgnoreFile != "" {
		m, err := hostfilter.Load(cfg.IgnoreFile)
		if err != nil {
			return nil, err
		}
		log.WithField("component", "sniff").Infof("Loaded %d ignore patterns", m.Len())
		opts.Filter = m
	}
	if cfg.Resolve {
		opts.Resolver = flow.NewResolver(nil, cfg.ResolveTimeout)
	}
	return flow.NewClassifier(opts), nil
}
