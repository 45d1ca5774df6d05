package model

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/xxh3"

	"github.com/YuminosukeSato/histboost/pkg/errors"
)

// Compression selects the codec applied to a model file.
type Compression string

const (
	NoCompression     Compression = "none"
	ZstdCompression   Compression = "zstd"
	LZ4Compression    Compression = "lz4"
	SnappyCompression Compression = "snappy"
)

// CompressionFor picks the codec from a file name: ".zst", ".lz4" and ".sz"
// select zstd, lz4 and snappy; anything else is stored as plain JSON.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return ZstdCompression
	case ".lz4":
		return LZ4Compression
	case ".sz", ".snappy":
		return SnappyCompression
	default:
		return NoCompression
	}
}

// Compress encodes data with c.
func Compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case NoCompression, "":
		return data, nil
	case SnappyCompression:
		return snappy.Encode(nil, data), nil
	case LZ4Compression:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, errors.Wrap(err, "lz4 write")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "lz4 close")
		}
		return buf.Bytes(), nil
	case ZstdCompression:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errors.Wrap(err, "zstd encoder")
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, errors.NewValueError("Compress", fmt.Sprintf("unsupported compression %q", c))
	}
}

// Decompress reverses Compress.
func Decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case NoCompression, "":
		return data, nil
	case SnappyCompression:
		out, err := snappy.Decode(nil, data)
		return out, errors.Wrap(err, "snappy decode")
	case LZ4Compression:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		return out, errors.Wrap(err, "lz4 read")
	case ZstdCompression:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(err, "zstd decoder")
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		return out, errors.Wrap(err, "zstd decode")
	default:
		return nil, errors.NewValueError("Decompress", fmt.Sprintf("unsupported compression %q", c))
	}
}

// Checksum returns the XXH3-64 digest of data as 16 hex digits.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

// VerifyChecksum returns ErrChecksumMismatch when data does not hash to want.
// An empty want skips verification.
func VerifyChecksum(data []byte, want string) error {
	if want == "" {
		return nil
	}
	if got := Checksum(data); got != want {
		return errors.Wrapf(errors.ErrChecksumMismatch, "expected %s, got %s", want, got)
	}
	return nil
}

// WriteFile compresses payload according to the extension of path and writes
// it through a temporary file renamed into place, so readers never see a
// partial model.
func WriteFile(path string, payload []byte) (err error) {
	data, err := Compress(CompressionFor(path), payload)
	if err != nil {
		return errors.NewModelError("WriteFile", "compress", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.NewModelError("WriteFile", "create", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.NewModelError("WriteFile", "write", err)
	}
	if err = tmp.Close(); err != nil {
		return errors.NewModelError("WriteFile", "close", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.NewModelError("WriteFile", "rename", err)
	}
	return nil
}

// ReadFile reads path and decompresses it according to its extension.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewModelError("ReadFile", "read", err)
	}
	out, err := Decompress(CompressionFor(path), data)
	if err != nil {
		return nil, errors.NewModelError("ReadFile", "decompress", err)
	}
	return out, nil
}
