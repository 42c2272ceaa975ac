package codec

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// -----------------------------------------------------------------------------
// Streaming zlib codec for the backend's compressed CSV payloads.
// Payloads are processed in fixed-size chunks; gzip-wrapped streams are
// auto-detected by their magic header.
// -----------------------------------------------------------------------------

const (
	// ChunkSize is the read/write granularity for the streaming loops.
	ChunkSize = 16 * 1024

	// DefaultLevel is used when a caller passes a level outside -1..9.
	DefaultLevel = zlib.DefaultCompression

	MinLevel = -1
	MaxLevel = 9
)

// -----------------------------------------------------------------------------
// Error types
// -----------------------------------------------------------------------------

// DecodeError reports a corrupt or invalid compressed stream. Any partial
// output carried alongside it is diagnostic only and must not be treated as
// usable data.
type DecodeError struct {
	Message string
	Cause   error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------

// TruncatedStreamWarning is a soft failure: the input was exhausted before the
// end-of-stream marker was seen. The bytes decoded so far are returned to the
// caller, which decides whether the partial data is usable.
type TruncatedStreamWarning struct {
	Decoded int
}

func (e *TruncatedStreamWarning) Error() string {
	return fmt.Sprintf("compressed stream did not end properly (%d bytes decoded, data may be incomplete)", e.Decoded)
}

// -----------------------------------------------------------------------------

// IsTruncated reports whether err is a TruncatedStreamWarning.
func IsTruncated(err error) bool {
	var w *TruncatedStreamWarning
	return errors.As(err, &w)
}

// -----------------------------------------------------------------------------
// Decompress
// -----------------------------------------------------------------------------

// Decompress inflates a zlib (or gzip, auto-detected) stream in ChunkSize
// chunks. Empty input yields empty output without error. A corrupt stream
// yields a *DecodeError; a stream that runs out of input before its logical
// end yields the partial output together with a *TruncatedStreamWarning.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}

	src := bytes.NewReader(data)

	var reader io.ReadCloser
	var err error
	if isGzip(data) {
		reader, err = gzip.NewReader(src)
	} else {
		reader, err = zlib.NewReader(src)
	}
	if err != nil {
		return nil, &DecodeError{Message: "failed to open compressed stream", Cause: err}
	}
	defer reader.Close()

	var out bytes.Buffer
	out.Grow(len(data) * 5) // Heuristic: assume ~5x compression ratio
	chunk := make([]byte, ChunkSize)

	for {
		n, readErr := reader.Read(chunk)
		if n > 0 {
			out.Write(chunk[:n])
		}
		if readErr == io.EOF {
			return out.Bytes(), nil
		}
		if readErr != nil {
			if errors.Is(readErr, io.ErrUnexpectedEOF) {
				// Input exhausted mid-stream: surface what we have.
				return out.Bytes(), &TruncatedStreamWarning{Decoded: out.Len()}
			}
			return out.Bytes(), &DecodeError{Message: "decompression failed", Cause: readErr}
		}
	}
}

// -----------------------------------------------------------------------------
// Compress
// -----------------------------------------------------------------------------

// Compress deflates data with the given zlib level, feeding input in
// ChunkSize chunks. A level outside -1..9 is clamped to DefaultLevel rather
// than rejected. Empty input yields empty output.
func Compress(data []byte, level int) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}

	if level < MinLevel || level > MaxLevel {
		level = DefaultLevel
	}

	var out bytes.Buffer
	out.Grow(len(data)/2 + 128)

	writer, err := zlib.NewWriterLevel(&out, level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize compressor: %w", err)
	}

	for offset := 0; offset < len(data); offset += ChunkSize {
		end := offset + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := writer.Write(data[offset:end]); err != nil {
			writer.Close()
			return nil, fmt.Errorf("compression failed: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize compressed stream: %w", err)
	}

	return out.Bytes(), nil
}

// -----------------------------------------------------------------------------

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
