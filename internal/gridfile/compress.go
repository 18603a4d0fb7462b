package gridfile

import (
	"errors"
	"fmt"
	"io"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go"
	"github.com/klauspost/compress/zstd"
)

// frameSize is the uncompressed size of each seekable zstd frame. Lookups
// decompress one frame per node read.
const frameSize = 64 << 10

// seekableReader serves random reads from a seekable zstd stream and owns
// the decoder and the underlying file.
type seekableReader struct {
	seekable.Reader
	dec *zstd.Decoder
	raw io.Closer
}

func newSeekableReader(raw io.ReadSeekCloser) (*seekableReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	r, err := seekable.NewReader(raw, dec)
	if err != nil {
		dec.Close()
		return nil, fmt.Errorf("read seek table: %w", err)
	}
	return &seekableReader{Reader: r, dec: dec, raw: raw}, nil
}

func (s *seekableReader) Close() error {
	err := s.Reader.Close()
	s.dec.Close()
	return errors.Join(err, s.raw.Close())
}

// CompressSeekable copies a grid from src to dst as a seekable zstd stream
// so that it can be opened by File.Open under a ".zst" name.
func CompressSeekable(dst io.Writer, src io.Reader) error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()

	w, err := seekable.NewWriter(dst, enc)
	if err != nil {
		return fmt.Errorf("create seekable writer: %w", err)
	}

	buf := make([]byte, frameSize)
	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				w.Close()
				return fmt.Errorf("write frame: %w", err)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			w.Close()
			return fmt.Errorf("read grid: %w", rerr)
		}
	}

	// Close writes the seek table.
	if err := w.Close(); err != nil {
		return fmt.Errorf("write seek table: %w", err)
	}
	return nil
}
