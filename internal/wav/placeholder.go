package wav

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
)

// Finalizer patches the two size fields of a placeholder header once the
// number of payload bytes is known. It holds only the target and the offsets
// and may be called more than once; the last call wins.
type Finalizer func(dataBytes uint32) error

type options struct {
	byteWise bool
}

// Option configures WritePlaceholder
type Option func(*options)

// ByteWise makes the finalizer write each size field as four single-byte
// writes, for stores that cannot write more than one byte after a seek. The
// resulting file is byte-identical.
func ByteWise() Option {
	return func(o *options) {
		o.byteWise = true
	}
}

// WritePlaceholder writes a complete header for f with both size fields set
// to zero, so the file is valid even if it is never finalized, and returns
// the Finalizer for it. w must be positioned at the start of the file.
func WritePlaceholder(w io.WriteSeeker, f capture.Format, opts ...Option) (Finalizer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h, err := NewHeader(f)
	if err != nil {
		return nil, err
	}
	data, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}

	n, err := w.Write(data)
	if err != nil {
		return nil, fmt.Errorf("write placeholder header: %w", err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("write placeholder header: %w", io.ErrShortWrite)
	}

	patch := patchField
	if o.byteWise {
		patch = patchFieldByteWise
	}

	return func(dataBytes uint32) error {
		if dataBytes > MaxDataSize {
			return fmt.Errorf("data size %d exceeds WAV limit", dataBytes)
		}
		if err := patch(w, riffSizeOffset, dataBytes+HeaderSize-8); err != nil {
			return fmt.Errorf("patch RIFF size: %w", err)
		}
		if err := patch(w, dataSizeOffset, dataBytes); err != nil {
			return fmt.Errorf("patch data size: %w", err)
		}
		return nil
	}, nil
}

func patchField(w io.WriteSeeker, offset int64, v uint32) error {
	if _, err := w.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	n, err := w.Write(b[:])
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

func patchFieldByteWise(w io.WriteSeeker, offset int64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	for i := range b {
		if _, err := w.Seek(offset+int64(i), io.SeekStart); err != nil {
			return err
		}
		n, err := w.Write(b[i : i+1])
		if err != nil {
			return err
		}
		if n != 1 {
			return io.ErrShortWrite
		}
	}
	return nil
}
