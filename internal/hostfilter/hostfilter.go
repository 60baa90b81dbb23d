package hostfilter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Matcher drops hosts in which one of its patterns occurs as whole labels,
// so example.com matches www.example.com but not notexample.com. The zero
// value and a nil *Matcher match nothing.
type Matcher struct {
	patterns []string
	ac       *ahocorasick.Matcher
}

// New builds a Matcher. Patterns are lowercased, "*." prefixes are dropped
// and blanks skipped.
func New(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p)), "*.")
		if p == "" {
			continue
		}
		m.patterns = append(m.patterns, p)
	}
	if len(m.patterns) > 0 {
		m.ac = ahocorasick.NewStringMatcher(m.patterns)
	}
	return m
}

// Load reads one pattern per line from path. Lines starting with # are
// comments.
func Load(path string) (*Matcher, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open host filter: %w", err)
	}
	defer file.Close()

	m, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("read host filter %s: %w", path, err)
	}
	return m, nil
}

func Parse(r io.Reader) (*Matcher, error) {
	var patterns []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return New(patterns), nil
}

// Match reports whether one of the patterns occurs in host on label
// boundaries.
func (m *Matcher) Match(host string) bool {
	if m == nil || m.ac == nil || host == "" {
		return false
	}
	host = strings.ToLower(host)
	for _, i := range m.ac.MatchThreadSafe([]byte(host)) {
		if onLabels(host, m.patterns[i]) {
			return true
		}
	}
	return false
}

// onLabels reports whether p occurs in host starting at a label start and
// ending at a label end. A leading or trailing dot in p is its own boundary.
func onLabels(host, p string) bool {
	for off := 0; off < len(host); {
		i := strings.Index(host[off:], p)
		if i < 0 {
			return false
		}
		start, end := off+i, off+i+len(p)
		startOK := start == 0 || host[start-1] == '.' || strings.HasPrefix(p, ".")
		endOK := end == len(host) || host[end] == '.' || strings.HasSuffix(p, ".")
		if startOK && endOK {
			return true
		}
		off = start + 1
	}
	return false
}

func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}
