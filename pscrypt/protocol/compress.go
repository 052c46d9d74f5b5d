package protocol

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

var (
	ErrCompressionFailed   = errors.New("protocol: compression failed")
	ErrDecompressionFailed = errors.New("protocol: decompression failed")
)

var compressorPool = sync.Pool{
	New: func() interface{} {
		w := lz4.NewWriter(nil)
		_ = w.Apply(lz4.CompressionLevelOption(lz4.Fast))
		return w
	},
}

var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// Compress returns the lz4 frame encoding of data.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)

	w.Reset(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(ErrCompressionFailed, err.Error())
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(ErrCompressionFailed, err.Error())
	}
	return buf.Bytes(), nil
}

// Decompress inflates an lz4 frame, refusing output larger than limit.
func Decompress(data []byte, limit int) ([]byte, error) {
	r := decompressorPool.Get().(*lz4.Reader)
	defer decompressorPool.Put(r)

	r.Reset(bytes.NewReader(data))

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, errors.Wrap(ErrDecompressionFailed, err.Error())
	}
	if n > int64(limit) {
		return nil, ErrFrameTooLarge
	}
	return buf.Bytes(), nil
}

// maybeCompress compresses payloads that shrink; others are sent as is.
func maybeCompress(payload []byte) ([]byte, bool) {
	if len(payload) < minCompressSize {
		return payload, false
	}
	c, err := Compress(payload)
	if err != nil || len(c) >= len(payload) {
		return payload, false
	}
	return c, true
}
