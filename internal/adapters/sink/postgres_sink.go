package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

const readingColumns = "source_id, ts, seq, co2_ppm, ammonia_ppm, h2s_ppm, door_open, air_quality"

// PostgresSink keeps the full reading history in a sensor_readings style table.
type PostgresSink struct {
	db        *sql.DB
	tableName string
}

func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, tableName: table}
}

func (p *PostgresSink) Name() string { return "postgres" }

// WriteBatch inserts every reading in one statement. Replays after a crash hit
// the (source_id, ts, seq) key and are ignored.
func (p *PostgresSink) WriteBatch(readings []*domain.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.tableName)
	b.WriteString(" (" + readingColumns + ") VALUES ")

	args := make([]any, 0, len(readings)*8)
	for i, r := range readings {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8))

		args = append(args,
			r.SourceID,
			r.Timestamp,
			int64(r.Seq),
			nullUint16(r.CO2PPM),
			nullFloat(r.AmmoniaPPM),
			nullFloat(r.H2SPPM),
			nullBool(r.DoorOpen),
			string(r.AirQuality),
		)
	}

	b.WriteString(" ON CONFLICT (source_id, ts, seq) DO NOTHING")

	_, err := p.db.Exec(b.String(), args...)
	return err
}

// Latest returns the most recent stored reading, or nil when the table is empty.
func (p *PostgresSink) Latest(ctx context.Context) (*domain.SensorReading, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+readingColumns+" FROM "+p.tableName+" ORDER BY ts DESC, seq DESC LIMIT 1")

	var (
		r       domain.SensorReading
		seq     int64
		co2     sql.NullInt64
		ammonia sql.NullFloat64
		h2s     sql.NullFloat64
		door    sql.NullBool
		quality string
	)
	err := row.Scan(&r.SourceID, &r.Timestamp, &seq, &co2, &ammonia, &h2s, &door, &quality)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres sink: latest: %w", err)
	}

	r.Seq = uint64(seq)
	r.AirQuality = domain.AirQuality(quality)
	if co2.Valid {
		r.CO2PPM = domain.Uint16(uint16(co2.Int64))
	}
	if ammonia.Valid {
		r.AmmoniaPPM = domain.Float64(ammonia.Float64)
	}
	if h2s.Valid {
		r.H2SPPM = domain.Float64(h2s.Float64)
	}
	if door.Valid {
		r.DoorOpen = domain.Bool(door.Bool)
	}
	return &r, nil
}

func nullUint16(v *uint16) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

var _ ports.Sink = (*PostgresSink)(nil)
