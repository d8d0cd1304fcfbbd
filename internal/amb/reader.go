package amb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
)

// Load reads a complete .amb container from disk.
func Load(path string) (*FrameSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("amb: open %s: %w", path, err)
	}
	defer f.Close()

	fs, err := Read(f)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	return fs, nil
}

// Read parses a .amb stream. The reader is consumed until end of file; any
// truncated trailing record is dropped rather than reported as an error.
func Read(r io.Reader) (*FrameSet, error) {
	var magic [MAGIC_SIZE]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, &FormatError{Offset: 0, Reason: fmt.Sprintf("reading magic: %v", err)}
	}

	fs := &FrameSet{Schema: string(magic[:])}
	var headerSize int64
	var rawFormat int
	var err error

	switch fs.Schema {
	case MAGIC_MULTI:
		rawFormat, err = readMultiHeader(r, fs)
		headerSize = HEADER_SIZE_MULTI
	case MAGIC_LEGACY:
		rawFormat, err = readLegacyHeader(r, fs)
		headerSize = HEADER_SIZE_LEGACY
	default:
		return nil, &FormatError{Offset: 0, Reason: fmt.Sprintf("unrecognized magic %q", magic)}
	}
	if err != nil {
		return nil, err
	}

	if rawFormat != int(FormatRGB) && rawFormat != int(FormatRGBW) {
		return nil, &FormatError{Offset: headerSize, Reason: fmt.Sprintf("unknown pixel format %d", rawFormat)}
	}
	fs.Format = PixelFormat(rawFormat)

	if fs.Zones == 0 {
		return nil, &FormatError{Offset: headerSize, Reason: "zone count is zero"}
	}

	frameSize := fs.Zones * fs.Format.BytesPerZone()
	record := make([]byte, TIMESTAMP_SIZE+frameSize)
	offset := headerSize
	for {
		n, err := io.ReadFull(r, record)
		if err == io.EOF {
			break // clean record boundary at end of stream
		}
		if err == io.ErrUnexpectedEOF {
			// Truncated trailing record: drop the partial bytes, keep
			// everything loaded so far.
			log.Printf("amb: dropped truncated trailing record (%d of %d bytes at offset %d)", n, len(record), offset)
			break
		}
		if err != nil {
			return nil, &FormatError{Offset: offset, Reason: fmt.Sprintf("reading frame record: %v", err)}
		}

		payload := make([]byte, frameSize)
		copy(payload, record[TIMESTAMP_SIZE:])
		fs.Frames = append(fs.Frames, Frame{
			Timestamp: binary.LittleEndian.Uint64(record[:TIMESTAMP_SIZE]),
			Payload:   payload,
		})
		offset += int64(len(record))
	}

	fs.FPS = healFrameRate(fs.FPS, fs.Frames)
	return fs, nil
}

// readLegacyHeader parses the 10 post-magic bytes of the "AMBI" schema:
// fps (f32) + led_count (u16) + format (u16) + rotation_offset (u16).
func readLegacyHeader(r io.Reader, fs *FrameSet) (int, error) {
	buf := make([]byte, HEADER_SIZE_LEGACY-MAGIC_SIZE)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, &FormatError{Offset: MAGIC_SIZE, Reason: fmt.Sprintf("truncated legacy header: %v", err)}
	}

	fs.FPS = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])))
	fs.Zones = int(binary.LittleEndian.Uint16(buf[4:6]))
	format := int(binary.LittleEndian.Uint16(buf[6:8]))
	fs.RotationOffset = int(binary.LittleEndian.Uint16(buf[8:10]))
	return format, nil
}

// readMultiHeader parses the 13 post-magic bytes of the "AMb2" schema:
// fps (f32) + top/bottom/left/right counts (u16 each) + format (u8).
func readMultiHeader(r io.Reader, fs *FrameSet) (int, error) {
	buf := make([]byte, HEADER_SIZE_MULTI-MAGIC_SIZE)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, &FormatError{Offset: MAGIC_SIZE, Reason: fmt.Sprintf("truncated multi-edge header: %v", err)}
	}

	fs.FPS = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])))
	fs.Edges = EdgeCounts{
		Top:    int(binary.LittleEndian.Uint16(buf[4:6])),
		Bottom: int(binary.LittleEndian.Uint16(buf[6:8])),
		Left:   int(binary.LittleEndian.Uint16(buf[8:10])),
		Right:  int(binary.LittleEndian.Uint16(buf[10:12])),
	}
	fs.Zones = fs.Edges.Total()
	return int(buf[12]), nil
}

// healFrameRate returns a usable frames-per-second value. Header rates that
// are non-finite, non-positive, or above MAX_FPS are replaced by the rate
// implied by the first two frame timestamps, then by DEFAULT_FPS.
func healFrameRate(header float64, frames []Frame) float64 {
	if validFrameRate(header) {
		return header
	}
	if len(frames) >= 2 && frames[1].Timestamp > frames[0].Timestamp {
		derived := 1e6 / float64(frames[1].Timestamp-frames[0].Timestamp)
		if validFrameRate(derived) {
			log.Printf("amb: header frame rate %v unusable, derived %.3f fps from timestamps", header, derived)
			return derived
		}
	}
	log.Printf("amb: header frame rate %v unusable, falling back to %v fps", header, DEFAULT_FPS)
	return DEFAULT_FPS
}

func validFrameRate(fps float64) bool {
	return !math.IsNaN(fps) && !math.IsInf(fps, 0) && fps > 0 && fps <= MAX_FPS
}
