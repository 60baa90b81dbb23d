package configs

import (
	"os"
	"os/user"

	"github.com/srun-soft/websniffer/internal/record"
)

// CurrentIdentity names the capturing machine: the OS user and the network
// host name.
func CurrentIdentity() record.Identity {
	return record.Identity{
		Username: currentUsername(),
		Hostname: currentHostname(),
	}
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, env := range []string{"USER", "USERNAME", "LOGNAME"} {
		if name := os.Getenv(env); name != "" {
			return name
		}
	}
	return "unknown_user"
}

func currentHostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown_host"
	}
	return name
}
