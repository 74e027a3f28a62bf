package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ErrChecksum is returned when a recorded frame does not match its checksum.
var ErrChecksum = errors.New("snapshot: checksum mismatch")

// MaxRecordSize bounds a single recorded frame.
const MaxRecordSize = 256 << 20

// Each record is a 12 byte header, little endian payload length and xxhash64
// of the payload, followed by the gob encoded frame.
const headerSize = 12

// Recorder appends frames to a stream.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	frames uint64
}

func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

func (r *Recorder) Record(f *Frame) error {
	data, err := f.Serialize()
	if err != nil {
		return err
	}
	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(data)))
	binary.LittleEndian.PutUint64(header[4:], xxhash.Sum64(data))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := r.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	r.frames++
	return nil
}

// Frames is the number of frames written so far.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Player reads frames written by a Recorder.
type Player struct {
	r io.Reader
}

func NewPlayer(r io.Reader) *Player {
	return &Player{r: r}
}

// Next returns the next frame, or io.EOF at a clean end of stream.
func (p *Player) Next() (*Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(p.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		return nil, err
	}
	size := binary.LittleEndian.Uint32(header[:4])
	if size > MaxRecordSize {
		return nil, fmt.Errorf("snapshot: frame of %d bytes exceeds limit", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(p.r, data); err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if xxhash.Sum64(data) != binary.LittleEndian.Uint64(header[4:]) {
		return nil, ErrChecksum
	}
	var f Frame
	if err := f.Deserialize(data); err != nil {
		return nil, err
	}
	return &f, nil
}

// All reads frames until the end of the stream.
func (p *Player) All() ([]*Frame, error) {
	var out []*Frame
	for {
		f, err := p.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
