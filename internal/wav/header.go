// Package wav writes and reads the fixed 44-byte PCM WAV header used for
// recordings, and patches its size fields once the data length is known.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
)

const (
	// HeaderSize is the length of the canonical PCM header
	HeaderSize = 44

	// offsets of the two fields patched at finalize
	riffSizeOffset = 4
	dataSizeOffset = 40

	fmtChunkSize = 16
	formatPCM    = 1

	// MaxDataSize is the largest payload whose RIFF size still fits in 32 bits
	MaxDataSize = math.MaxUint32 - (HeaderSize - 8)
)

var (
	riffID = [4]byte{'R', 'I', 'F', 'F'}
	waveID = [4]byte{'W', 'A', 'V', 'E'}
	fmtID  = [4]byte{'f', 'm', 't', ' '}
	dataID = [4]byte{'d', 'a', 't', 'a'}
)

// ErrInvalidHeader is returned when a header cannot be parsed as PCM WAV
var ErrInvalidHeader = errors.New("invalid WAV header")

// Header is the decoded 44-byte header
type Header struct {
	RIFFSize      uint32 `json:"riff_size"`
	AudioFormat   uint16 `json:"audio_format"`
	Channels      uint16 `json:"channels"`
	SampleRate    uint32 `json:"sample_rate"`
	ByteRate      uint32 `json:"byte_rate"`
	BlockAlign    uint16 `json:"block_align"`
	BitsPerSample uint16 `json:"bits_per_sample"`
	DataSize      uint32 `json:"data_size"`
}

// rawHeader mirrors the on-disk layout field by field
type rawHeader struct {
	RIFF          [4]byte
	RIFFSize      uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// NewHeader returns a header for f with both size fields zero
func NewHeader(f capture.Format) (Header, error) {
	if err := f.Validate(); err != nil {
		return Header{}, err
	}
	return Header{
		AudioFormat:   formatPCM,
		Channels:      uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.ByteRate()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitsPerSample),
	}, nil
}

// WithDataSize returns a copy of h with both size fields set for n payload bytes
func (h Header) WithDataSize(n uint32) Header {
	h.DataSize = n
	h.RIFFSize = n + HeaderSize - 8
	return h
}

// Format returns the PCM parameters described by the header
func (h Header) Format() capture.Format {
	return capture.Format{
		SampleRate:    int(h.SampleRate),
		Channels:      int(h.Channels),
		BitsPerSample: int(h.BitsPerSample),
	}
}

// MarshalBinary encodes the header in its 44-byte little-endian layout
func (h Header) MarshalBinary() ([]byte, error) {
	raw := rawHeader{
		RIFF:          riffID,
		RIFFSize:      h.RIFFSize,
		WAVE:          waveID,
		Fmt:           fmtID,
		FmtSize:       fmtChunkSize,
		AudioFormat:   h.AudioFormat,
		Channels:      h.Channels,
		SampleRate:    h.SampleRate,
		ByteRate:      h.ByteRate,
		BlockAlign:    h.BlockAlign,
		BitsPerSample: h.BitsPerSample,
		Data:          dataID,
		DataSize:      h.DataSize,
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	if err := binary.Write(&buf, binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes and validates a 44-byte header
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidHeader, HeaderSize, len(data))
	}

	var raw rawHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	switch {
	case raw.RIFF != riffID:
		return fmt.Errorf("%w: missing RIFF magic", ErrInvalidHeader)
	case raw.WAVE != waveID:
		return fmt.Errorf("%w: missing WAVE magic", ErrInvalidHeader)
	case raw.Fmt != fmtID:
		return fmt.Errorf("%w: missing fmt chunk", ErrInvalidHeader)
	case raw.FmtSize != fmtChunkSize:
		return fmt.Errorf("%w: unexpected fmt chunk size %d", ErrInvalidHeader, raw.FmtSize)
	case raw.AudioFormat != formatPCM:
		return fmt.Errorf("%w: audio format %d is not PCM", ErrInvalidHeader, raw.AudioFormat)
	case raw.Data != dataID:
		return fmt.Errorf("%w: missing data chunk", ErrInvalidHeader)
	}

	*h = Header{
		RIFFSize:      raw.RIFFSize,
		AudioFormat:   raw.AudioFormat,
		Channels:      raw.Channels,
		SampleRate:    raw.SampleRate,
		ByteRate:      raw.ByteRate,
		BlockAlign:    raw.BlockAlign,
		BitsPerSample: raw.BitsPerSample,
		DataSize:      raw.DataSize,
	}

	if err := h.Format().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if int(h.BlockAlign) != h.Format().BlockAlign() || int(h.ByteRate) != h.Format().ByteRate() {
		return fmt.Errorf("%w: byte rate %d / block align %d inconsistent with %s",
			ErrInvalidHeader, h.ByteRate, h.BlockAlign, h.Format())
	}
	return nil
}

// ReadHeader reads and validates the header at the current position of r
func ReadHeader(r io.Reader) (Header, error) {
	data := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}

	var h Header
	if err := h.UnmarshalBinary(data); err != nil {
		return Header{}, err
	}
	return h, nil
}
