// Package rowframe wraps stored rows in a small checksummed, optionally
// compressed frame.
//
// Frame layout:
//
//	[Compression uint8][CRC32C uint32 LE][Body...]
//
// For CompressionNone the body is the row itself. Otherwise the body is
// [UncompressedSize uvarint][Block...]. The checksum covers the body, so a
// corrupt frame is rejected before any decompressor sees it.
package rowframe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/factdb/internal/conv"
	"github.com/hupe1980/factdb/internal/hash"
)

// ErrCorrupt is returned when a frame fails its checksum or cannot be decoded.
var ErrCorrupt = errors.New("rowframe: corrupt frame")

// Compression selects the block compressor.
type Compression uint8

const (
	// CompressionNone stores rows as they are.
	CompressionNone Compression = 0
	// CompressionLZ4 is fast and suits hot rows.
	CompressionLZ4 Compression = 1
	// CompressionZSTD compresses better and suits cold rows.
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("rowframe: unknown compression %q", s)
	}
}

const headerSize = 5

// DefaultThreshold is the smallest row worth compressing.
const DefaultThreshold = 256

// MaxRowSize bounds the declared size of a compressed row.
const MaxRowSize = 1 << 30

// Options configures a Framer.
type Options struct {
	Compression Compression
	// Threshold is the smallest row size that is compressed. Smaller rows are
	// framed uncompressed.
	Threshold int
}

// DefaultOptions frames rows without compression.
func DefaultOptions() Options {
	return Options{Compression: CompressionNone, Threshold: DefaultThreshold}
}

// Framer encodes and decodes frames. The zero value frames without
// compression. A Framer is safe for concurrent use.
type Framer struct {
	opts Options
}

// New creates a Framer.
func New(opts Options) *Framer {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Framer{opts: opts}
}

// Options returns the framer options.
func (f *Framer) Options() Options { return f.opts }

// Encode frames row. If compression does not pay off the row is stored as is.
func (f *Framer) Encode(row []byte) ([]byte, error) {
	c := f.opts.Compression
	if len(row) < f.opts.Threshold {
		c = CompressionNone
	}

	var block []byte
	switch c {
	case CompressionNone:
	case CompressionLZ4:
		block = compressLZ4(row)
	case CompressionZSTD:
		block = compressZSTD(row)
	default:
		return nil, fmt.Errorf("rowframe: unsupported compression %s", c)
	}

	// Not worth it when the ratio is above 0.9.
	if c != CompressionNone && (len(block) == 0 || float64(len(block)) > float64(len(row))*0.9) {
		c = CompressionNone
	}

	if c == CompressionNone {
		out := make([]byte, headerSize, headerSize+len(row))
		out[0] = byte(CompressionNone)
		out = append(out, row...)
		binary.LittleEndian.PutUint32(out[1:], hash.CRC32C(out[headerSize:]))
		return out, nil
	}

	out := make([]byte, headerSize, headerSize+binary.MaxVarintLen64+len(block))
	out[0] = byte(c)
	out = binary.AppendUvarint(out, uint64(len(row)))
	out = append(out, block...)
	binary.LittleEndian.PutUint32(out[1:], hash.CRC32C(out[headerSize:]))
	return out, nil
}

// Decode verifies frame and returns the row. Uncompressed rows alias frame.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(frame))
	}
	body := frame[headerSize:]
	if want, got := binary.LittleEndian.Uint32(frame[1:]), hash.CRC32C(body); want != got {
		return nil, fmt.Errorf("%w: checksum %08x, want %08x", ErrCorrupt, got, want)
	}

	c := Compression(frame[0])
	if c == CompressionNone {
		return body, nil
	}

	size, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad size prefix", ErrCorrupt)
	}
	block := body[n:]
	sz, err := conv.Bounded(size, MaxRowSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	switch c {
	case CompressionLZ4:
		out := make([]byte, sz)
		got, err := lz4.UncompressBlock(block, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		if got != sz {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, got, sz)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)

		out, err := dec.DecodeAll(block, make([]byte, 0, sz))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		if len(out) != sz {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, len(out), sz)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

func compressLZ4(row []byte) []byte {
	buf := make([]byte, lz4.CompressBlockBound(len(row)))
	n, err := lz4.CompressBlock(row, buf, nil)
	if err != nil || n == 0 {
		return nil // incompressible
	}
	return buf[:n]
}

func compressZSTD(row []byte) []byte {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(row, nil)
}
