package observe

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

type logSink struct {
	logger *slog.Logger
}

// NewLogSink renders events as structured log records. Mismatches and
// unexpected disconnects are warnings; routine connection churn is debug.
func NewLogSink(logger *slog.Logger) Sink {
	return logSink{logger: logger}
}

func (s logSink) Emit(e Event) {
	l := s.logger.With("conn", e.ConnID)
	switch e.Kind {
	case ConnectionAccepted:
		l.Debug("connection accepted", "remote", e.Remote)
	case ConnectionRejected:
		l.Warn("connection rejected", "remote", e.Remote, "reason", e.Cause)
	case ConnectionStarted:
		l.Info("connection started", "remote", e.Remote)
	case ConnectionClosed:
		attrs := []any{"remote", e.Remote, "cause", e.Cause}
		if e.Bytes > 0 {
			attrs = append(attrs, "partial", humanize.IBytes(uint64(e.Bytes)))
		}
		if e.Err != "" {
			attrs = append(attrs, "err", e.Err)
		}
		if e.Expected {
			l.Info("connection closed", attrs...)
		} else {
			l.Warn("connection terminated", attrs...)
		}
	case RequestReceived:
		l.Debug("transfer requested",
			"file", e.Filename,
			"size", e.DeclaredSize,
			"checksum", e.DeclaredChecksum)
	case ResumeOffered:
		l.Debug("resume offset sent", "file", e.Filename, "offset", e.Offset)
	case TransferSkipped:
		l.Info("transfer skipped, artifact larger than declared size",
			"file", e.Filename,
			"length", e.Length,
			"size", e.DeclaredSize)
	case TransferReceived:
		l.Debug("data received",
			"file", e.Filename,
			"bytes", humanize.IBytes(uint64(e.Bytes)),
			"offset", e.Offset)
	case ChecksumVerified:
		l.Info("checksum verified",
			"file", e.Filename,
			"size", humanize.IBytes(uint64(max(e.DeclaredSize, 0))),
			"checksum", e.Computed,
			"blake3", e.Digest)
	case ChecksumMismatch:
		l.Warn("checksum mismatch",
			"file", e.Filename,
			"size", humanize.IBytes(uint64(max(e.DeclaredSize, 0))),
			"expected", e.DeclaredChecksum,
			"computed", e.Computed,
			"blake3", e.Digest)
	default:
		l.Debug("event", "kind", string(e.Kind))
	}
}
