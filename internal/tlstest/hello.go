// Package tlstest builds synthetic TLS Client Hello records for tests.
package tlstest

import (
	"crypto/tls"

	"golang.org/x/crypto/cryptobyte"
)

// Extension is one raw Client Hello extension.
type Extension struct {
	Type uint16
	Data []byte
}

// ServerName returns a server_name extension with a single host_name entry.
func ServerName(host string) Extension {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(0) // host_name
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes([]byte(host))
		})
	})
	return Extension{Type: 0x0000, Data: b.BytesOrPanic()}
}

// SupportedGroups returns a supported_groups extension listing x25519.
func SupportedGroups() Extension {
	return Extension{Type: 0x000a, Data: []byte{0x00, 0x02, 0x00, 0x1d}}
}

// ClientHello returns a TLS 1.2 handshake record with a 32 byte session id,
// two cipher suites, null compression and exts in order.
func ClientHello(exts ...Extension) []byte {
	var b cryptobyte.Builder
	b.AddUint8(0x16)
	b.AddUint16(tls.VersionTLS10)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(0x01)
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16(tls.VersionTLS12)
			b.AddBytes(make([]byte, 32))
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(make([]byte, 32))
			})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
				b.AddUint16(tls.TLS_AES_128_GCM_SHA256)
			})
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint8(0)
			})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, e := range exts {
					b.AddUint16(e.Type)
					b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
						b.AddBytes(e.Data)
					})
				}
			})
		})
	})
	return b.BytesOrPanic()
}

// WithSNI is ClientHello(SupportedGroups(), ServerName(host)).
func WithSNI(host string) []byte {
	return ClientHello(SupportedGroups(), ServerName(host))
}
