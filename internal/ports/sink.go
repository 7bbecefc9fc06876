package ports

import "github.com/ghalamif/wattflow/internal/domain"

// Sink persists ordered batches of output records. Sinks may additionally
// implement Flusher and io.Closer.
type Sink interface {
	WriteBatch(records []*domain.Record) error
	Name() string
}

// Flusher is implemented by sinks that buffer writes.
type Flusher interface {
	Flush() error
}
