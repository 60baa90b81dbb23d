package extract

import "strings"

const hostHeader = "Host: "

// ExtractHTTPHost returns the value of the first "Host: " header line of a
// plaintext HTTP request payload. Invalid UTF-8 is replaced, not rejected.
func ExtractHTTPHost(payload []byte) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	text := strings.ToValidUTF8(string(payload), "\uFFFD")
	for _, line := range strings.Split(text, "\r\n") {
		if !strings.HasPrefix(line, hostHeader) {
			continue
		}
		host := line[len(hostHeader):]
		if host == "" {
			return "", false
		}
		return host, true
	}
	return "", false
}
