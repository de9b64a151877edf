package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sheerbytes/thrudrop/internal/artifact"
	"github.com/sheerbytes/thrudrop/internal/bufpool"
	"github.com/sheerbytes/thrudrop/internal/checksum"
	"github.com/sheerbytes/thrudrop/internal/netutil"
	"github.com/sheerbytes/thrudrop/internal/observe"
)

const tracerName = "github.com/sheerbytes/thrudrop/internal/protocol"

var (
	headerBuffers = bufpool.New(FilenameBufferSize)
	dataBuffers   = bufpool.New(DataChunkSize)
)

// Handler serves upload connections against one artifact store. It is safe
// for concurrent use; all per-connection state lives in Serve.
type Handler struct {
	store  *artifact.Store
	sink   observe.Sink
	tracer trace.Tracer
	now    func() time.Time
}

// NewHandler returns a handler writing into store and reporting to sink.
// A nil sink discards events.
func NewHandler(store *artifact.Store, sink observe.Sink) *Handler {
	if sink == nil {
		sink = observe.Discard
	}
	return &Handler{
		store:  store,
		sink:   sink,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

// Serve runs transfers on conn until the connection terminates, then closes
// it. The returned error is the termination cause and is never nil: there is
// no in-band end of session, so even a clean hang-up surfaces as a receive
// error wrapping io.EOF.
//
// Cancelling ctx stops the connection at the next transfer boundary. It does
// not interrupt a blocked read; closing conn does.
func (h *Handler) Serve(ctx context.Context, conn Conn, peer Peer) error {
	s := &session{
		h:      h,
		conn:   conn,
		peer:   peer,
		header: headerBuffers.Get(),
		data:   dataBuffers.Get(),
	}
	defer headerBuffers.Put(s.header)
	defer dataBuffers.Put(s.data)

	s.emit(observe.Event{Kind: observe.ConnectionStarted})

	var st State = SendReady{}
	for {
		if t, ok := st.(Terminated); ok {
			s.finish(t.Cause)
			_ = conn.Close()
			s.emit(observe.Event{
				Kind:     observe.ConnectionClosed,
				Bytes:    s.partial,
				Cause:    CauseName(t.Cause),
				Expected: netutil.IsExpectedClose(t.Cause) || errors.Is(t.Cause, ErrShuttingDown),
				Err:      t.Cause.Error(),
			})
			return t.Cause
		}
		st = s.step(ctx, st)
	}
}

type session struct {
	h      *Handler
	conn   Conn
	peer   Peer
	header *[]byte
	data   *[]byte

	// partial counts bytes appended by a data phase that did not finish.
	partial int64
	span    trace.Span
}

func (s *session) step(ctx context.Context, st State) State {
	switch st := st.(type) {
	case SendReady:
		if ctx.Err() != nil {
			return terminate(ErrShuttingDown, context.Cause(ctx))
		}
		if err := s.send(ReadyMarker); err != nil {
			return terminate(ErrSendReady, err)
		}
		return RecvFilename{}

	case RecvFilename:
		b, err := s.recv((*s.header)[:FilenameBufferSize])
		if err != nil {
			return terminate(ErrRecvFilename, err)
		}
		return RecvSize{Filename: string(b)}

	case RecvSize:
		b, err := s.recv((*s.header)[:SizeBufferSize])
		if err != nil {
			return terminate(ErrRecvSize, err)
		}
		return RecvChecksum{Filename: st.Filename, Size: parseDecimal(b)}

	case RecvChecksum:
		b, err := s.recv((*s.header)[:ChecksumBufferSize])
		if err != nil {
			return terminate(ErrRecvChecksum, err)
		}
		req := Request{
			Filename:         st.Filename,
			DeclaredSize:     st.Size,
			DeclaredChecksum: uint32(parseDecimal(b)),
		}
		s.begin(ctx, req)
		s.emitRequest(observe.RequestReceived, req, observe.Event{})
		return ResumeNegotiate{Request: req}

	case ResumeNegotiate:
		return s.negotiate(st.Request)

	case DataPhase:
		return s.receive(st)

	case Verify:
		return s.verify(st)

	case Terminated:
		return st
	}
	return terminate(fmt.Errorf("unknown state %T", st), nil)
}

func (s *session) negotiate(req Request) State {
	path, err := s.h.store.Resolve(req.Filename)
	if err != nil {
		return terminate(ErrUnsafeFilename, err)
	}
	length, exists, err := s.h.store.Length(path)
	if err != nil {
		return terminate(ErrOpenArtifact, err)
	}
	if exists && length > req.DeclaredSize {
		// No reply: the client is expected to move on to its next header.
		s.emitRequest(observe.TransferSkipped, req, observe.Event{Length: length})
		s.finish(nil)
		return SendReady{}
	}
	var offset int64
	if exists {
		offset = length
	}
	if err := s.send(strconv.FormatInt(offset, 10)); err != nil {
		return terminate(ErrSendOffset, err)
	}
	s.emitRequest(observe.ResumeOffered, req, observe.Event{Offset: offset})
	return DataPhase{Request: req, Path: path, Offset: offset, Received: offset}
}

func (s *session) receive(st DataPhase) State {
	f, err := s.h.store.OpenAppend(st.Path)
	if err != nil {
		return terminate(ErrOpenArtifact, err)
	}
	buf := (*s.data)[:DataChunkSize]
	received := st.Received
	for received < st.Request.DeclaredSize {
		want := min(int64(len(buf)), st.Request.DeclaredSize-received)
		chunk, err := s.recv(buf[:want])
		if err != nil {
			_ = f.Close()
			s.partial = received - st.Offset
			return terminate(ErrRecvData, err)
		}
		n, err := f.Write(chunk)
		if err == nil && n != len(chunk) {
			err = io.ErrShortWrite
		}
		if n > 0 {
			received += int64(n)
		}
		if err != nil {
			_ = f.Close()
			s.partial = received - st.Offset
			return terminate(ErrWriteData, err)
		}
	}
	if err := f.Close(); err != nil {
		s.partial = received - st.Offset
		return terminate(ErrWriteData, err)
	}
	s.emitRequest(observe.TransferReceived, st.Request, observe.Event{
		Offset: st.Offset,
		Bytes:  received - st.Offset,
	})
	return Verify{Request: st.Request, Path: st.Path, Offset: st.Offset}
}

func (s *session) verify(st Verify) State {
	req := st.Request
	ev := observe.Event{Offset: st.Offset}
	res, err := checksum.Scan(s.h.store.Fs(), st.Path, 0, req.DeclaredSize)
	if err != nil {
		// An unreadable artifact verifies as sum 0, which almost always
		// mismatches.
		ev.Err = err.Error()
	} else {
		ev.Digest = res.DigestHex()
	}
	ev.Computed = res.Sum

	kind := observe.ChecksumVerified
	if res.Sum != req.DeclaredChecksum {
		kind = observe.ChecksumMismatch
	}
	s.emitRequest(kind, req, ev)
	if s.span != nil {
		s.span.SetAttributes(
			attribute.Int64("thrudrop.checksum.computed", int64(res.Sum)),
			attribute.Bool("thrudrop.checksum.match", kind == observe.ChecksumVerified),
		)
	}
	s.finish(nil)
	return SendReady{}
}

// recv performs exactly one read into buf. Any positive count is success;
// a zero-byte read is a failure even without an error.
func (s *session) recv(buf []byte) ([]byte, error) {
	n, err := s.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, err
}

// send writes msg in one call. A short write is a failure.
func (s *session) send(msg string) error {
	n, err := io.WriteString(s.conn, msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return io.ErrShortWrite
	}
	return nil
}

func (s *session) begin(ctx context.Context, req Request) {
	_, s.span = s.h.tracer.Start(ctx, "thrudrop.transfer",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("thrudrop.conn_id", s.peer.ID),
			attribute.String("thrudrop.filename", req.Filename),
			attribute.Int64("thrudrop.declared_size", req.DeclaredSize),
			attribute.Int64("thrudrop.declared_checksum", int64(req.DeclaredChecksum)),
		))
}

func (s *session) finish(cause error) {
	if s.span == nil {
		return
	}
	if cause != nil {
		s.span.RecordError(cause)
		s.span.SetStatus(codes.Error, CauseName(cause))
	}
	s.span.End()
	s.span = nil
}

func (s *session) emit(e observe.Event) {
	e.Time = s.h.now()
	e.ConnID = s.peer.ID
	e.Remote = s.peer.Remote
	s.h.sink.Emit(e)
}

func (s *session) emitRequest(kind observe.Kind, req Request, e observe.Event) {
	e.Kind = kind
	e.Filename = req.Filename
	e.DeclaredSize = req.DeclaredSize
	e.DeclaredChecksum = req.DeclaredChecksum
	s.emit(e)
}

func terminate(cause, err error) Terminated {
	if err == nil {
		return Terminated{Cause: cause}
	}
	return Terminated{Cause: fmt.Errorf("%w: %w", cause, err)}
}
