package wattflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/wattflow/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("wattflow: channel sink closed")

// NewCallbackSink adapts a RecordBatchSink into a full Sink so callers can
// plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn RecordBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Record, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Record, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   RecordBatchSink
}

func (s *callbackSink) WriteBatch(records []*domain.Record) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(records) == 0 {
		return nil
	}
	return s.fn(convertDomainBatch(records))
}

func (s *callbackSink) Name() string { return s.name }

// channelSink closes ch only after every in-flight send has observed
// closed, so a writer never sends on a closed channel.
type channelSink struct {
	name   string
	ch     chan []Record
	closed chan struct{}
	once   sync.Once
	sendMu sync.RWMutex
}

func (s *channelSink) WriteBatch(records []*domain.Record) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(records) == 0 {
		return nil
	}

	batch := convertDomainBatch(records)

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- batch:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}
