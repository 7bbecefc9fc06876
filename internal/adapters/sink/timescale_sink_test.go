package sink

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ghalamif/wattflow/internal/domain"
)

func TestTimescaleSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "power_samples")
	ts := time.Now()

	records := []*domain.Record{
		domain.NewSampleRecord("package-0", 1, domain.NewElectricalData(ts, 12, 0.5), domain.Microseconds),
		domain.NewMarkerRecord(ts, "warmup done", domain.Microseconds),
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO power_samples (kind, sensor, ts, ts_scaled, resolution, seq, voltage, current, power, text) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10),($11,$12,$13,$14,$15,$16,$17,$18,$19,$20)")
	mock.ExpectExec(expectedQuery).
		WithArgs(
			"sample", "package-0", ts, ts.UnixMicro(), "us", int64(1), 12.0, 0.5, 6.0, "",
			"marker", "", ts, ts.UnixMicro(), "us", int64(0), 0.0, 0.0, 0.0, "warmup done",
		).
		WillReturnResult(sqlmock.NewResult(2, 2))

	if err := sink.WriteBatch(records); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkWriteBatchNoRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "power_samples")
	if err := sink.WriteBatch(nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	sink := NewTimescaleSink(db, "power_samples")
	if sink.Name() != "timescaledb" {
		t.Fatalf("expected sink name timescaledb, got %s", sink.Name())
	}
}
