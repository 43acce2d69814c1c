package wav

import (
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

// Info is what a full decoder pass reports about a recording
type Info struct {
	SampleRate    int           `json:"sample_rate"`
	Channels      int           `json:"channels"`
	BitsPerSample int           `json:"bits_per_sample"`
	Duration      time.Duration `json:"duration"`
	PCMBytes      int64         `json:"pcm_bytes"`
	Frames        int64         `json:"frames"`
}

// Probe decodes r with a general purpose WAV reader, which also accepts files
// with extra chunks. Files whose data chunk is empty are rejected.
func Probe(r io.ReadSeeker) (Info, error) {
	decoder := gowav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		if err := decoder.Err(); err != nil {
			return Info{}, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
		}
		return Info{}, fmt.Errorf("%w: not a playable WAV file", ErrInvalidHeader)
	}
	if err := decoder.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if decoder.PCMLen() == 0 {
		return Info{}, fmt.Errorf("%w: no audio data", ErrInvalidHeader)
	}

	info := Info{
		SampleRate:    int(decoder.SampleRate),
		Channels:      int(decoder.NumChans),
		BitsPerSample: int(decoder.BitDepth),
		PCMBytes:      decoder.PCMLen(),
	}
	if blockAlign := int64(info.Channels * info.BitsPerSample / 8); blockAlign > 0 {
		info.Frames = info.PCMBytes / blockAlign
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

// ReadPCM decodes the whole payload of r into integer samples
func ReadPCM(r io.ReadSeeker) (*audio.IntBuffer, error) {
	decoder := gowav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: not a playable WAV file", ErrInvalidHeader)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode PCM: %w", err)
	}
	return buf, nil
}

// Peak returns the largest absolute sample value in buf relative to full scale
func Peak(buf *audio.IntBuffer) float64 {
	if buf == nil || buf.SourceBitDepth <= 0 || len(buf.Data) == 0 {
		return 0
	}
	fullScale := float64(int64(1) << (buf.SourceBitDepth - 1))
	peak := 0
	for _, s := range buf.Data {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return float64(peak) / fullScale
}
