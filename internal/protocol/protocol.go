// Package protocol implements the server side of the upload protocol.
//
// The wire format has no framing: each header field is whatever a single
// receive returns, and the server answers with bare ASCII. One connection
// carries any number of transfers, one at a time:
//
//	S→C  READY
//	C→S  filename          (≤ 1024 bytes)
//	C→S  declared size     (decimal ASCII, ≤ 1024 bytes)
//	C→S  declared checksum (decimal ASCII, ≤ 256 bytes)
//	S→C  resume offset     (decimal ASCII; omitted when the artifact is
//	                        already longer than the declared size)
//	C→S  size − offset raw bytes
//
// After the data the server verifies the whole artifact against the declared
// byte-sum checksum and starts over with READY. The outcome is never sent to
// the client.
package protocol

import (
	"errors"
	"io"
)

// ReadyMarker opens every transfer.
const ReadyMarker = "READY"

// Receive buffer sizes. A single read never asks for more than these.
const (
	FilenameBufferSize = 1024
	SizeBufferSize     = 1024
	ChecksumBufferSize = 256
	DataChunkSize      = 256
)

// Conn is the byte stream a handler serves. net.Conn satisfies it.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Request is one transfer header as declared by the client.
type Request struct {
	Filename         string
	DeclaredSize     int64
	DeclaredChecksum uint32
}

// Peer identifies the connection in events.
type Peer struct {
	ID     string
	Remote string
}

// Termination causes. A terminated connection's error wraps exactly one of
// these, plus the underlying transport or file-system error when there is one.
var (
	ErrSendReady      = errors.New("send ready marker")
	ErrRecvFilename   = errors.New("receive filename")
	ErrRecvSize       = errors.New("receive size")
	ErrRecvChecksum   = errors.New("receive checksum")
	ErrUnsafeFilename = errors.New("unsafe filename")
	ErrOpenArtifact   = errors.New("open artifact")
	ErrSendOffset     = errors.New("send resume offset")
	ErrRecvData       = errors.New("receive data")
	ErrWriteData      = errors.New("write data")
	ErrShuttingDown   = errors.New("server shutting down")
)

var causes = []struct {
	err  error
	name string
}{
	{ErrSendReady, "send_ready"},
	{ErrRecvFilename, "recv_filename"},
	{ErrRecvSize, "recv_size"},
	{ErrRecvChecksum, "recv_checksum"},
	{ErrUnsafeFilename, "unsafe_filename"},
	{ErrOpenArtifact, "open_artifact"},
	{ErrSendOffset, "send_offset"},
	{ErrRecvData, "recv_data"},
	{ErrWriteData, "write_data"},
	{ErrShuttingDown, "shutdown"},
}

// CauseName returns a short, stable label for a termination error, suitable
// for metrics.
func CauseName(err error) string {
	if err == nil {
		return "none"
	}
	for _, c := range causes {
		if errors.Is(err, c.err) {
			return c.name
		}
	}
	return "other"
}
