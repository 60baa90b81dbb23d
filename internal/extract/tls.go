package extract

import (
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
)

// tls 协议
// 通过 Client Hello 的 server_name 扩展获取 hostname

const (
	recordTypeHandshake      = 0x16
	handshakeTypeClientHello = 0x01
	extensionServerName      = 0x0000
)

// IsClientHello reports whether payload starts like a TLS handshake record
// carrying a Client Hello. It does not validate anything past byte 5.
func IsClientHello(payload []byte) bool {
	return len(payload) > 5 && payload[0] == recordTypeHandshake && payload[5] == handshakeTypeClientHello
}

// ExtractSNI returns the server name of the first server_name extension
// found in a TLS Client Hello carried by a single TCP payload.
//
// Parsing is best effort and single pass: the record and handshake length
// fields are skipped, not enforced, and the extensions length only bounds
// the scan. Any read past the end of payload, an unexpected record or
// handshake type, an empty name or a name that is not valid UTF-8 yields
// ("", false).
func ExtractSNI(payload []byte) (string, bool) {
	s := cryptobyte.String(payload)

	var recordType, handshakeType uint8
	if !s.ReadUint8(&recordType) || recordType != recordTypeHandshake {
		return "", false
	}
	// record version(2) + length(2)
	if !s.Skip(4) || !s.ReadUint8(&handshakeType) || handshakeType != handshakeTypeClientHello {
		return "", false
	}
	// handshake length(3) + client version(2) + random(32)
	if !s.Skip(3 + 2 + 32) {
		return "", false
	}

	var sessionID, cipherSuites, compressionMethods cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&sessionID) ||
		!s.ReadUint16LengthPrefixed(&cipherSuites) ||
		!s.ReadUint8LengthPrefixed(&compressionMethods) {
		return "", false
	}

	var extensionsLen uint16
	if !s.ReadUint16(&extensionsLen) {
		return "", false
	}

	for remaining := int(extensionsLen); remaining > 0; {
		var extType, extLen uint16
		if !s.ReadUint16(&extType) || !s.ReadUint16(&extLen) {
			return "", false
		}
		if extType == extensionServerName {
			return readServerName(s)
		}
		if !s.Skip(int(extLen)) {
			return "", false
		}
		remaining -= 4 + int(extLen)
	}
	return "", false
}

// readServerName reads the first entry of a server_name list. The name type
// is not checked, only host_name(0) is defined.
func readServerName(s cryptobyte.String) (string, bool) {
	var nameLen uint16
	var name []byte
	// list length(2) + name type(1)
	if !s.Skip(2+1) || !s.ReadUint16(&nameLen) || nameLen == 0 {
		return "", false
	}
	if !s.ReadBytes(&name, int(nameLen)) || !utf8.Valid(name) {
		return "", false
	}
	return string(name), true
}
