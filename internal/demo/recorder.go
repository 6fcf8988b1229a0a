// Package demo records matches: a gzip stream holding a msgpack header
// followed by every reliable and movement stream the server broadcast,
// stamped with the game time.
package demo

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Magic and Version identify the demo format.
const (
	Magic   = "ACDEMO"
	Version = 1
)

// MaxRecord bounds a single record's payload.
const MaxRecord = 1 << 20

var (
	ErrNotRecording = errors.New("demo: recorder is closed")
	ErrBadMagic     = errors.New("demo: not a demo file")
	ErrBadRecord    = errors.New("demo: corrupt record")
)

// Header describes a recorded match.
type Header struct {
	Magic       string    `msgpack:"magic" json:"-"`
	Version     int       `msgpack:"version" json:"version"`
	Protocol    int       `msgpack:"protocol" json:"protocol"`
	ID          string    `msgpack:"id" json:"id"`
	Mode        int       `msgpack:"mode" json:"mode"`
	ModeName    string    `msgpack:"mode_name" json:"mode_name"`
	Map         string    `msgpack:"map" json:"map"`
	Description string    `msgpack:"description" json:"description"`
	Started     time.Time `msgpack:"started" json:"started"`
}

// Record is one recorded stream chunk.
type Record struct {
	Millis  int
	Channel int
	Data    []byte
}

// Recorder writes one match. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	gz      *gzip.Writer
	header  Header
	records int
	closed  bool
}

// NewRecorder starts a recording with h. Magic, version and ID are filled in.
func NewRecorder(h Header) (*Recorder, error) {
	h.Magic = Magic
	h.Version = Version
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.Started.IsZero() {
		h.Started = time.Now()
	}

	r := &Recorder{header: h}
	gz, err := gzip.NewWriterLevel(&r.buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	r.gz = gz

	raw, err := msgpack.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("failed to encode demo header: %w", err)
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(raw)))
	if _, err := r.gz.Write(size[:]); err != nil {
		return nil, err
	}
	if _, err := r.gz.Write(raw); err != nil {
		return nil, err
	}
	return r, nil
}

// Header returns the recording's header.
func (r *Recorder) Header() Header {
	return r.header
}

// Write appends one record stamped with the game time in milliseconds.
func (r *Recorder) Write(channel int, data []byte, millis int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrNotRecording
	}
	var stamp [12]byte
	binary.LittleEndian.PutUint32(stamp[0:], uint32(int32(millis)))
	binary.LittleEndian.PutUint32(stamp[4:], uint32(int32(channel)))
	binary.LittleEndian.PutUint32(stamp[8:], uint32(len(data)))
	if _, err := r.gz.Write(stamp[:]); err != nil {
		return err
	}
	if _, err := r.gz.Write(data); err != nil {
		return err
	}
	r.records++
	return nil
}

// Records returns how many records were written.
func (r *Recorder) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records
}

// Finish closes the stream and returns the compressed demo.
func (r *Recorder) Finish() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrNotRecording
	}
	r.closed = true
	if err := r.gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish demo: %w", err)
	}
	return r.buf.Bytes(), nil
}

// Reader replays a finished demo.
type Reader struct {
	gz     *gzip.Reader
	header Header
}

// NewReader opens data and decodes its header.
func NewReader(data []byte) (*Reader, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open demo: %w", err)
	}
	var size [4]byte
	if _, err := io.ReadFull(gz, size[:]); err != nil {
		return nil, ErrBadMagic
	}
	n := binary.LittleEndian.Uint32(size[:])
	if n > MaxRecord {
		return nil, ErrBadMagic
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(gz, raw); err != nil {
		return nil, ErrBadMagic
	}
	r := &Reader{gz: gz}
	if err := msgpack.Unmarshal(raw, &r.header); err != nil || r.header.Magic != Magic {
		return nil, ErrBadMagic
	}
	return r, nil
}

// Header returns the demo's header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	var stamp [12]byte
	if _, err := io.ReadFull(r.gz, stamp[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, ErrBadRecord
	}
	rec := Record{
		Millis:  int(int32(binary.LittleEndian.Uint32(stamp[0:]))),
		Channel: int(int32(binary.LittleEndian.Uint32(stamp[4:]))),
	}
	n := binary.LittleEndian.Uint32(stamp[8:])
	if n > MaxRecord {
		return Record{}, ErrBadRecord
	}
	rec.Data = make([]byte, n)
	if _, err := io.ReadFull(r.gz, rec.Data); err != nil {
		return Record{}, ErrBadRecord
	}
	return rec, nil
}
