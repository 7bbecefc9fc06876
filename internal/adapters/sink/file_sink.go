package sink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

const recordHeaderLen = 12

// FileSink appends records to a length-prefixed log. Each frame is
// [8 bytes id][4 bytes len][len bytes json]; ids keep counting across reopens.
type FileSink struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	nextID    uint64
	sizeBytes int64
}

func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	s := &FileSink{
		path:   path,
		file:   f,
		writer: bufio.NewWriterSize(f, 1<<16),
	}
	if err := s.scanExisting(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// scanExisting recovers the last id and drops a torn trailing frame.
func (s *FileSink) scanExisting() error {
	stat, err := s.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID uint64
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("output scan header: %w", err)
		}
		id := binary.BigEndian.Uint64(hdr[0:8])
		length := binary.BigEndian.Uint32(hdr[8:12])

		if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("output scan body: %w", err)
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
	}

	if offset != stat.Size() {
		if err := s.file.Truncate(offset); err != nil {
			return err
		}
	}
	s.sizeBytes = offset
	s.nextID = lastID
	return nil
}

func (s *FileSink) Name() string { return "file" }

// Path returns the location of the log on disk.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) WriteBatch(records []*domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return os.ErrClosed
	}

	// Encode the whole batch first so a bad record leaves nothing behind.
	frames := make([][]byte, len(records))
	for i, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("output encode %s record of %q: %w", r.Kind, r.Sensor, err)
		}
		frames[i] = b
	}

	for _, b := range frames {
		id := s.nextID + 1
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], id)
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

		if _, err := s.writer.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := s.writer.Write(b); err != nil {
			return err
		}
		s.nextID = id
		s.sizeBytes += int64(len(b) + len(hdr))
	}
	return nil
}

func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.writer.Flush()
	err = errors.Join(err, s.file.Close())
	s.file = nil
	return err
}

// SizeBytes reports the number of bytes written, including buffered frames.
func (s *FileSink) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeBytes
}

// Iterate walks over the records stored at path in append order.
func Iterate(path string, fn func(id uint64, r *domain.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("corrupt output header: %w", err)
		}
		id := binary.BigEndian.Uint64(hdr[0:8])
		l := binary.BigEndian.Uint32(hdr[8:12])

		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt output frame %d: %w", id, err)
		}

		var rec domain.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("corrupt output record %d: %w", id, err)
		}
		if err := fn(id, &rec); err != nil {
			return err
		}
	}
}

var (
	_ ports.Sink    = (*FileSink)(nil)
	_ ports.Flusher = (*FileSink)(nil)
)
