package amb

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Write serializes the set to w using the schema named by fs.Schema, or the
// multi-edge schema when Schema is empty. Every frame payload must be exactly
// fs.FrameSize() bytes.
func Write(w io.Writer, fs *FrameSet) error {
	if !fs.Format.Valid() {
		return fmt.Errorf("amb: cannot write unknown pixel format %d", fs.Format)
	}

	schema := fs.Schema
	if schema == "" {
		schema = MAGIC_MULTI
	}
	switch schema {
	case MAGIC_MULTI:
		if err := writeMultiHeader(w, fs); err != nil {
			return err
		}
	case MAGIC_LEGACY:
		if err := writeLegacyHeader(w, fs); err != nil {
			return err
		}
	default:
		return fmt.Errorf("amb: cannot write unrecognized schema %q", schema)
	}

	frameSize := fs.FrameSize()
	record := make([]byte, TIMESTAMP_SIZE+frameSize)
	for i, frame := range fs.Frames {
		if len(frame.Payload) != frameSize {
			return fmt.Errorf("amb: frame %d payload is %d bytes, want %d", i, len(frame.Payload), frameSize)
		}
		binary.LittleEndian.PutUint64(record[:TIMESTAMP_SIZE], frame.Timestamp)
		copy(record[TIMESTAMP_SIZE:], frame.Payload)
		if _, err := w.Write(record); err != nil {
			return fmt.Errorf("amb: writing frame %d: %w", i, err)
		}
	}
	return nil
}

// WriteFile serializes the set to a new file at path.
func WriteFile(path string, fs *FrameSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("amb: create %s: %w", path, err)
	}
	if err := Write(f, fs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeMultiHeader(w io.Writer, fs *FrameSet) error {
	if fs.Edges.Total() != fs.Zones {
		return fmt.Errorf("amb: edge counts sum to %d, zone count is %d", fs.Edges.Total(), fs.Zones)
	}
	for _, n := range []int{fs.Edges.Top, fs.Edges.Bottom, fs.Edges.Left, fs.Edges.Right} {
		if n < 0 || n > math.MaxUint16 {
			return fmt.Errorf("amb: edge count %d does not fit the header field", n)
		}
	}

	buf := make([]byte, HEADER_SIZE_MULTI)
	copy(buf[0:MAGIC_SIZE], MAGIC_MULTI)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(fs.FPS)))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(fs.Edges.Top))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(fs.Edges.Bottom))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(fs.Edges.Left))
	binary.LittleEndian.PutUint16(buf[14:16], uint16(fs.Edges.Right))
	buf[16] = byte(fs.Format)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("amb: writing header: %w", err)
	}
	return nil
}

func writeLegacyHeader(w io.Writer, fs *FrameSet) error {
	if fs.Zones < 0 || fs.Zones > math.MaxUint16 {
		return fmt.Errorf("amb: zone count %d does not fit the header field", fs.Zones)
	}
	if fs.RotationOffset < 0 || fs.RotationOffset > math.MaxUint16 {
		return fmt.Errorf("amb: rotation offset %d does not fit the header field", fs.RotationOffset)
	}

	buf := make([]byte, HEADER_SIZE_LEGACY)
	copy(buf[0:MAGIC_SIZE], MAGIC_LEGACY)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(fs.FPS)))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(fs.Zones))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(fs.Format))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(fs.RotationOffset))

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("amb: writing header: %w", err)
	}
	return nil
}
