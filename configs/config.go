package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/spf13/viper"
	"github.com/srun-soft/websniffer/internal/report"
)

// Keys. The backend keys match the environment variables the backend
// deployment already uses; everything else comes from flags.
const (
	KeyBaseURL          = "packet_sniffer_base_url"
	KeyBackendHost      = "backend_host"
	KeyBackendPort      = "backend_port"
	KeyPostPath         = "packet_sniffer_post_path"
	KeyServerURL        = "server_url"
	KeyReportTimeout    = "report_timeout"
	KeyIface            = "iface"
	KeyPcapFile         = "pcap"
	KeyBPF              = "bpf"
	KeySnapLen          = "snaplen"
	KeyPromisc          = "promisc"
	KeyDefrag           = "defrag"
	KeyDebug            = "debug"
	KeyLogFile          = "log_file"
	KeyResolve          = "resolve"
	KeyResolveTimeout   = "resolve_timeout"
	KeyReportUnresolved = "report_unresolved"
	KeyIgnoreFile       = "ignore_file"
)

const DefaultEnvFile = ".env"

type Config struct {
	Iface    string
	PcapFile string
	BPF      string
	SnapLen  int
	Promisc  bool
	Defrag   bool

	Debug   bool
	LogFile string

	ServerURL     string
	ReportTimeout time.Duration

	Resolve          bool
	ResolveTimeout   time.Duration
	ReportUnresolved bool
	IgnoreFile       string
}

// NewViper returns a viper instance with defaults and the backend
// environment variables bound.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for key, env := range map[string]string{
		KeyBaseURL:     "PACKET_SNIFFER_BASE_URL",
		KeyBackendHost: "BACKEND_HOST",
		KeyBackendPort: "BACKEND_PORT",
		KeyPostPath:    "PACKET_SNIFFER_POST_PATH",
	} {
		_ = v.BindEnv(key, env)
	}
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackendHost, "127.0.0.1")
	v.SetDefault(KeyBackendPort, "6000")
	v.SetDefault(KeyPostPath, report.DefaultPath)
	v.SetDefault(KeyReportTimeout, report.DefaultTimeout)
	v.SetDefault(KeyBPF, "tcp")
	v.SetDefault(KeySnapLen, 65536)
	v.SetDefault(KeyPromisc, true)
	v.SetDefault(KeyResolveTimeout, 2*time.Second)
}

// ReadEnvFile merges a dotenv file into v. Real environment variables keep
// precedence. A missing file is not an error unless required.
func ReadEnvFile(v *viper.Viper, path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Iface:            v.GetString(KeyIface),
		PcapFile:         v.GetString(KeyPcapFile),
		BPF:              v.GetString(KeyBPF),
		SnapLen:          v.GetInt(KeySnapLen),
		Promisc:          v.GetBool(KeyPromisc),
		Defrag:           v.GetBool(KeyDefrag),
		Debug:            v.GetBool(KeyDebug),
		LogFile:          v.GetString(KeyLogFile),
		ServerURL:        serverURL(v),
		ReportTimeout:    v.GetDuration(KeyReportTimeout),
		Resolve:          v.GetBool(KeyResolve),
		ResolveTimeout:   v.GetDuration(KeyResolveTimeout),
		ReportUnresolved: v.GetBool(KeyReportUnresolved),
		IgnoreFile:       v.GetString(KeyIgnoreFile),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SnapLen <= 0 {
		return fmt.Errorf("snaplen must be positive, got %d", c.SnapLen)
	}
	if c.ReportTimeout <= 0 {
		return fmt.Errorf("report timeout must be positive, got %s", c.ReportTimeout)
	}
	if c.ReportUnresolved && !c.Resolve {
		return errors.New("report-unresolved needs resolve")
	}
	if c.Iface != "" && c.PcapFile != "" {
		return errors.New("iface and pcap are mutually exclusive")
	}
	return nil
}

// serverURL is server_url when set, otherwise the base URL (or
// http://BACKEND_HOST:BACKEND_PORT) followed by the post path.
func serverURL(v *viper.Viper) string {
	if u := v.GetString(KeyServerURL); u != "" {
		return u
	}
	base := v.GetString(KeyBaseURL)
	if base == "" {
		base = "http://" + net.JoinHostPort(v.GetString(KeyBackendHost), v.GetString(KeyBackendPort))
	}
	return report.URL(base, v.GetString(KeyPostPath))
}
