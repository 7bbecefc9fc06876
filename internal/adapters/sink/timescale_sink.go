package sink

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ghalamif/wattflow/internal/domain"
	"github.com/ghalamif/wattflow/internal/ports"
)

const timescaleColumns = 10

// TimescaleSink writes records into a hypertable with one batched INSERT per
// WriteBatch call.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table}
}

// OpenTimescaleSink connects through lib/pq and verifies the connection.
func OpenTimescaleSink(dsn, table string) (*TimescaleSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewTimescaleSink(db, table), nil
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

func (t *TimescaleSink) WriteBatch(records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (kind, sensor, ts, ts_scaled, resolution, seq, voltage, current, power, text) VALUES ")

	args := make([]any, 0, len(records)*timescaleColumns)
	for i, r := range records {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9, n+10)

		args = append(args,
			r.Kind.String(),
			r.Sensor,
			r.At,
			r.Timestamp,
			r.Resolution.String(),
			int64(r.Seq),
			r.Voltage,
			r.Current,
			r.Power,
			r.Text,
		)
	}

	_, err := t.db.Exec(b.String(), args...)
	return err
}

func (t *TimescaleSink) Close() error {
	return t.db.Close()
}

var _ ports.Sink = (*TimescaleSink)(nil)
