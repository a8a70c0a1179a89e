package protocol

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: server.example.com\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"sec-websocket-KEY: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"\r\n"

func TestAcceptKey(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestParseUpgradeRequestCaseInsensitive(t *testing.T) {
	req, err := ParseUpgradeRequest([]byte(sampleRequest))
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/chat", req.Target)
	assert.Equal(t, "dGhlIHNhbXBsZSBub25jZQ==", req.Key())
	assert.Equal(t, "websocket", req.Header["upgrade"])
}

func TestParseUpgradeRequestMissingKey(t *testing.T) {
	head := strings.Replace(sampleRequest, "sec-websocket-KEY: dGhlIHNhbXBsZSBub25jZQ==\r\n", "", 1)
	_, err := ParseUpgradeRequest([]byte(head))
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestParseUpgradeRequestMalformed(t *testing.T) {
	_, err := ParseUpgradeRequest([]byte("garbage\r\n\r\n"))
	assert.ErrorIs(t, err, ErrMalformedRequest)

	_, err = ParseUpgradeRequest([]byte("GET / HTTP/1.1\r\nno-colon-here\r\n\r\n"))
	assert.ErrorIs(t, err, ErrMalformedRequest)
}

func TestHandshakeLeavesTrailingBytesBuffered(t *testing.T) {
	frame := EncodeMaskedFrame(OpText, []byte("hi"), [4]byte{9, 8, 7, 6})
	br := bufio.NewReader(bytes.NewReader(append([]byte(sampleRequest), frame...)))

	var out bytes.Buffer
	_, err := Handshake(br, &out)
	require.NoError(t, err)

	resp := out.String()
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n"))
	assert.Contains(t, resp, "Upgrade: websocket\r\n")
	assert.Contains(t, resp, "Connection: Upgrade\r\n")
	assert.Contains(t, resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n"))

	f, err := ReadFrame(br, 0)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(f.Payload))
}

func TestHandshakeFailureWritesNothing(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	var out bytes.Buffer
	_, err := Handshake(br, &out)
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Zero(t, out.Len())
}

func TestReadUpgradeRequestTruncated(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("GET / HTTP/1.1\r\nSec-WebSocket-Key: abc\r\n"))
	_, err := ReadUpgradeRequest(br)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestReadUpgradeRequestTooLarge(t *testing.T) {
	head := "GET / HTTP/1.1\r\nX: " + strings.Repeat("a", MaxHandshakeSize) + "\r\n\r\n"
	_, err := ReadUpgradeRequest(bufio.NewReader(strings.NewReader(head)))
	assert.ErrorIs(t, err, ErrHandshakeTooLarge)
}
