package ws

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
)

// acceptGUID is the fixed magic string the accept key is derived from
// (RFC 6455 §1.3).
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// DefaultMaxHandshake caps the client's upgrade request at 8 KiB.
const DefaultMaxHandshake = 8192

// acceptKey derives the Sec-WebSocket-Accept value from the client's
// Sec-WebSocket-Key: SHA-1 over key+GUID, base64 without line breaks.
func acceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// readHandshake reads the HTTP-style header block from br, up to and
// including the blank line, capped at maxLen bytes. Returns the raw
// header block.
func readHandshake(br *bufio.Reader, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxHandshake
	}
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", fmt.Errorf("%w: read handshake: %v", ErrConnBroken, err)
		}
		sb.WriteByte(b)
		if sb.Len() > maxLen {
			return "", fmt.Errorf("%w: handshake exceeds %d bytes", ErrConnBroken, maxLen)
		}
		if s := sb.String(); strings.HasSuffix(s, "\r\n\r\n") || strings.HasSuffix(s, "\n\n") {
			return s, nil
		}
	}
}

// extractKey scans the header block for the Sec-WebSocket-Key header,
// case-insensitive on the name, and returns the trimmed value.
func extractKey(header string) (string, error) {
	for _, line := range strings.Split(header, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Sec-WebSocket-Key") {
			return strings.TrimSpace(value), nil
		}
	}
	return "", fmt.Errorf("%w: missing Sec-WebSocket-Key header", ErrConnBroken)
}

// upgradeResponse builds the 101 Switching Protocols response.
func upgradeResponse(clientKey string) string {
	return "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey(clientKey) + "\r\n" +
		"\r\n"
}
