// Package client is the uploading side of the protocol. It sends files one
// after another over a single connection, resuming from whatever offset the
// server reports.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sheerbytes/thrudrop/internal/checksum"
	"github.com/sheerbytes/thrudrop/internal/protocol"
)

var (
	// ErrUnexpectedReply means the server sent something that is neither the
	// ready marker nor a resume offset.
	ErrUnexpectedReply = errors.New("unexpected server reply")
	// ErrInvalidName is returned for names the server could not receive in
	// one read.
	ErrInvalidName = errors.New("invalid upload name")
)

// Options tunes the uploader.
type Options struct {
	// FieldGap is the pause after each header field. The server reads each
	// field with a single receive, so fields sent back to back over TCP can
	// be merged into one read. Default 50ms; negative disables the pause.
	FieldGap time.Duration
	// ChunkSize is the payload write size. Default 32 KiB.
	ChunkSize int
	// DialTimeout bounds Dial. Default 5s.
	DialTimeout time.Duration
	// Progress, when set, is called after the resume offset is known and
	// after every payload write.
	Progress func(name string, done, total int64)
}

func (o Options) withDefaults() Options {
	if o.FieldGap == 0 {
		o.FieldGap = 50 * time.Millisecond
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 32 * 1024
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	return o
}

// Result describes one upload.
type Result struct {
	Name     string
	Size     int64
	Checksum uint32
	// Offset is where the server asked us to resume.
	Offset int64
	// Sent is the number of payload bytes written.
	Sent int64
	// Skipped is set when the server already holds more bytes than Size and
	// asked for nothing.
	Skipped bool
}

// Client uploads over one connection. It is not safe for concurrent use.
type Client struct {
	conn  io.ReadWriteCloser
	opts  Options
	reply []byte
	// ready is set when the marker for the next transfer was already read,
	// which happens when a transfer is skipped.
	ready bool
}

// Dial connects to a server.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return New(conn, opts), nil
}

// New wraps an established connection.
func New(conn io.ReadWriteCloser, opts Options) *Client {
	return &Client{
		conn:  conn,
		opts:  opts.withDefaults(),
		reply: make([]byte, 64),
	}
}

// Close closes the connection. The server sees a clean hang-up.
func (c *Client) Close() error {
	return c.conn.Close()
}

// UploadFile uploads the local file at path under its base name.
func (c *Client) UploadFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Result{}, err
	}
	return c.Upload(filepath.Base(path), f, info.Size())
}

// Upload sends size bytes of r under name. It returns once the payload is
// written; the server verifies afterwards without reporting back.
func (c *Client) Upload(name string, r io.ReaderAt, size int64) (Result, error) {
	res := Result{Name: name, Size: size}
	if name == "" || len(name) > protocol.FilenameBufferSize {
		return res, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	sum, n, err := checksum.SumReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return res, fmt.Errorf("checksum %s: %w", name, err)
	}
	if n != size {
		return res, fmt.Errorf("checksum %s: read %d of %d bytes", name, n, size)
	}
	res.Checksum = sum

	if err := c.awaitReady(); err != nil {
		return res, err
	}
	c.ready = false

	for _, field := range []string{name, strconv.FormatInt(size, 10), strconv.FormatUint(uint64(sum), 10)} {
		if _, err := io.WriteString(c.conn, field); err != nil {
			return res, fmt.Errorf("send header: %w", err)
		}
		c.pause()
	}

	reply, err := c.read()
	if err != nil {
		return res, fmt.Errorf("read resume offset: %w", err)
	}
	if reply == protocol.ReadyMarker {
		c.ready = true
		res.Skipped = true
		return res, nil
	}
	offset, err := strconv.ParseInt(reply, 10, 64)
	if err != nil || offset < 0 || offset > size {
		return res, fmt.Errorf("resume offset %q: %w", reply, ErrUnexpectedReply)
	}
	res.Offset = offset
	c.progress(name, offset, size)

	sent, err := c.sendPayload(name, io.NewSectionReader(r, offset, size-offset), offset, size)
	res.Sent = sent
	if err != nil {
		return res, fmt.Errorf("send payload: %w", err)
	}
	return res, nil
}

func (c *Client) awaitReady() error {
	if c.ready {
		return nil
	}
	reply, err := c.read()
	if err != nil {
		return fmt.Errorf("wait for ready: %w", err)
	}
	if reply != protocol.ReadyMarker {
		return fmt.Errorf("wait for ready, got %q: %w", reply, ErrUnexpectedReply)
	}
	return nil
}

func (c *Client) sendPayload(name string, r io.Reader, offset, size int64) (int64, error) {
	buf := make([]byte, c.opts.ChunkSize)
	var sent int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := c.conn.Write(buf[:n]); err != nil {
				return sent, err
			}
			sent += int64(n)
			c.progress(name, offset+sent, size)
		}
		if rerr == io.EOF {
			return sent, nil
		}
		if rerr != nil {
			return sent, rerr
		}
	}
}

func (c *Client) read() (string, error) {
	n, err := c.conn.Read(c.reply)
	if n > 0 {
		return string(c.reply[:n]), nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return "", err
}

func (c *Client) pause() {
	if c.opts.FieldGap > 0 {
		time.Sleep(c.opts.FieldGap)
	}
}

func (c *Client) progress(name string, done, total int64) {
	if c.opts.Progress != nil {
		c.opts.Progress(name, done, total)
	}
}
