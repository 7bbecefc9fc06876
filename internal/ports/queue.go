package ports

import "github.com/ghalamif/wattflow/internal/domain"

// RecordQueue is the bounded FIFO between the collector and its sink.
type RecordQueue interface {
	Enqueue(r *domain.Record) bool
	DequeueBatch(max int) []*domain.Record
	Len() int
}
