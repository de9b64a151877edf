// Package checksum implements the integrity value used by the upload
// protocol: the sum, modulo 2^32, of the unsigned byte values of a range.
//
// The value is additive, not a CRC. Clients compute it the same way, so the
// algorithm is part of the wire protocol and must not change without a
// protocol version bump.
package checksum

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/sheerbytes/thrudrop/internal/bufpool"
)

// ChunkSize is the read size used when scanning an artifact.
const ChunkSize = 1024

var chunks = bufpool.New(ChunkSize)

var errNegativeOffset = errors.New("negative offset")

// Summer is a hash.Hash32 over the byte-sum algorithm.
type Summer struct {
	sum uint32
}

var _ hash.Hash32 = (*Summer)(nil)

// New returns a zeroed Summer.
func New() *Summer {
	return &Summer{}
}

func (s *Summer) Write(p []byte) (int, error) {
	s.sum = Update(s.sum, p)
	return len(p), nil
}

func (s *Summer) Sum32() uint32 { return s.sum }

// Sum appends the big-endian sum to b.
func (s *Summer) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, s.sum)
}

func (s *Summer) Reset()         { s.sum = 0 }
func (s *Summer) Size() int      { return 4 }
func (s *Summer) BlockSize() int { return 1 }

// Update adds the bytes of p to sum.
func Update(sum uint32, p []byte) uint32 {
	for _, b := range p {
		sum += uint32(b)
	}
	return sum
}

// Result is the outcome of a single scan over an artifact range.
type Result struct {
	// Sum is the protocol checksum of the bytes read.
	Sum uint32
	// Bytes is how many bytes were actually read; less than the requested
	// range when the artifact ends early.
	Bytes int64
	// Digest is the BLAKE3 hash of the same bytes. It only feeds
	// observability and never crosses the wire.
	Digest [32]byte
}

// DigestHex returns the digest in lowercase hex.
func (r Result) DigestHex() string {
	return hex.EncodeToString(r.Digest[:])
}

// Scan opens path fresh, seeks to start and reads until end or end of file.
// An empty or inverted range yields a zero sum without touching the file
// contents.
func Scan(fs afero.Fs, path string, start, end int64) (Result, error) {
	var res Result
	f, err := fs.Open(path)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	summer := New()
	digest := blake3.New()
	if end > start {
		if start < 0 {
			return res, fmt.Errorf("seek %s: %w", path, errNegativeOffset)
		}
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return res, fmt.Errorf("seek %s: %w", path, err)
		}
		buf := chunks.Get()
		defer chunks.Put(buf)
		n, err := io.CopyBuffer(io.MultiWriter(summer, digest), io.LimitReader(f, end-start), *buf)
		res.Bytes = n
		if err != nil {
			return res, fmt.Errorf("read %s: %w", path, err)
		}
	}
	res.Sum = summer.Sum32()
	copy(res.Digest[:], digest.Sum(nil))
	return res, nil
}

// Sum returns the checksum of [start, end) of path. A file that cannot be
// opened or read sums to zero, which callers treat as a verification
// mismatch.
func Sum(fs afero.Fs, path string, start, end int64) uint32 {
	res, err := Scan(fs, path, start, end)
	if err != nil {
		return 0
	}
	return res.Sum
}

// SumReader drains r and returns its checksum and length. Uploaders use it
// to compute the declared checksum of a local file.
func SumReader(r io.Reader) (uint32, int64, error) {
	s := New()
	buf := chunks.Get()
	defer chunks.Put(buf)
	n, err := io.CopyBuffer(s, r, *buf)
	return s.Sum32(), n, err
}
