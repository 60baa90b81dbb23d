package flow

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

const unknownHost = "Unknown"

// AddrLookup is the subset of *net.Resolver used by Resolver.
type AddrLookup interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Resolver maps destination IPs to names with reverse DNS. Results live for
// the whole process; a failed lookup caches the IP itself.
type Resolver struct {
	lookup  AddrLookup
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]string
}

func NewResolver(lookup AddrLookup, timeout time.Duration) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{
		lookup:  lookup,
		timeout: timeout,
		cache:   make(map[string]string),
	}
}

// Lookup returns the first PTR name of ip, the ip itself when it has none,
// or "Unknown" when the lookup was cut short by a deadline or cancellation.
func (r *Resolver) Lookup(ctx context.Context, ip string) string {
	r.mu.Lock()
	name, ok := r.cache[ip]
	r.mu.Unlock()
	if ok {
		return name
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	names, err := r.lookup.LookupAddr(ctx, ip)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return unknownHost
	case err != nil || len(names) == 0:
		name = ip
	default:
		name = strings.TrimSuffix(names[0], ".")
	}

	r.mu.Lock()
	r.cache[ip] = name
	r.mu.Unlock()
	return name
}

func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
