package capture

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFormat is returned by Format.Validate for unusable PCM parameters
var ErrInvalidFormat = errors.New("invalid PCM format")

// Format describes the linear PCM stream a session captures
type Format struct {
	SampleRate    int `json:"sample_rate" yaml:"sample_rate"`
	Channels      int `json:"channels" yaml:"channels"`
	BitsPerSample int `json:"bits_per_sample" yaml:"bits_per_sample"`
}

// BlockAlign returns the size in bytes of one frame (one sample for every channel)
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the number of bytes produced per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// Validate checks that the format can be described by a 44-byte PCM WAV header
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be > 0, got %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels <= 0 || f.Channels > 0xffff {
		return fmt.Errorf("%w: channel count must be between 1 and 65535, got %d", ErrInvalidFormat, f.Channels)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 || f.BitsPerSample > 32 {
		return fmt.Errorf("%w: bits per sample must be 8, 16, 24 or 32, got %d", ErrInvalidFormat, f.BitsPerSample)
	}
	// block align is a 16-bit header field, sample rate and byte rate are 32-bit
	blockAlign := uint64(f.Channels) * uint64(f.BitsPerSample/8)
	if blockAlign > math.MaxUint16 {
		return fmt.Errorf("%w: frame size %d bytes does not fit the header", ErrInvalidFormat, blockAlign)
	}
	if byteRate := uint64(f.SampleRate) * blockAlign; byteRate > math.MaxUint32 {
		return fmt.Errorf("%w: byte rate %d does not fit the header", ErrInvalidFormat, byteRate)
	}
	return nil
}

// HalfSizeFor returns the byte length of one buffer half holding roughly ms
// milliseconds of audio, rounded down to whole frames (at least one frame)
func (f Format) HalfSizeFor(ms int) int {
	frames := f.SampleRate * ms / 1000
	if frames < 1 {
		frames = 1
	}
	return frames * f.BlockAlign()
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitsPerSample, f.Channels)
}
