package protocol

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	// MaxHandshakeSize bounds the upgrade request head.
	MaxHandshakeSize = 16 << 10
)

var (
	ErrMissingKey        = errors.New("missing Sec-WebSocket-Key header")
	ErrMalformedRequest  = errors.New("malformed upgrade request")
	ErrHandshakeTooLarge = errors.New("upgrade request too large")
)

var headerEnd = []byte("\r\n\r\n")

// UpgradeRequest is the parsed head of an HTTP upgrade request. Header
// names are lowercased.
type UpgradeRequest struct {
	Method string
	Target string
	Proto  string
	Header map[string]string
}

// Key returns the client's Sec-WebSocket-Key.
func (r *UpgradeRequest) Key() string {
	return r.Header["sec-websocket-key"]
}

// AcceptKey computes Sec-WebSocket-Accept for a client key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ReadUpgradeRequest consumes bytes from br up to and including the blank
// line that ends the request head. Bytes after it stay buffered in br.
func ReadUpgradeRequest(br *bufio.Reader) (*UpgradeRequest, error) {
	var head []byte
	for !bytes.HasSuffix(head, headerEnd) {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrShortRead
			}
			return nil, fmt.Errorf("%w: %w", ErrShortRead, err)
		}
		head = append(head, b)
		if len(head) > MaxHandshakeSize {
			return nil, ErrHandshakeTooLarge
		}
	}
	return ParseUpgradeRequest(head)
}

// ParseUpgradeRequest parses a complete request head. Only the presence of
// Sec-WebSocket-Key is enforced.
func ParseUpgradeRequest(head []byte) (*UpgradeRequest, error) {
	lines := strings.Split(strings.TrimRight(string(head), "\r\n"), "\r\n")
	if len(lines) == 0 {
		return nil, ErrMalformedRequest
	}
	parts := strings.Fields(lines[0])
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformedRequest, lines[0])
	}

	req := &UpgradeRequest{
		Method: parts[0],
		Target: parts[1],
		Proto:  parts[2],
		Header: make(map[string]string, len(lines)-1),
	}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedRequest, line)
		}
		req.Header[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	if req.Key() == "" {
		return nil, ErrMissingKey
	}
	return req, nil
}

// WriteUpgradeResponse writes the 101 response for the given accept value.
func WriteUpgradeResponse(w io.Writer, accept string) error {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n" +
		"\r\n"
	_, err := io.WriteString(w, resp)
	return err
}

// Handshake runs the server side of the upgrade on an accepted stream. On
// any error nothing is written and the caller should drop the connection.
func Handshake(br *bufio.Reader, w io.Writer) (*UpgradeRequest, error) {
	req, err := ReadUpgradeRequest(br)
	if err != nil {
		return nil, err
	}
	if err := WriteUpgradeResponse(w, AcceptKey(req.Key())); err != nil {
		return nil, fmt.Errorf("write upgrade response: %w", err)
	}
	return req, nil
}
