// Package store reads campaign segments, recorded stages and the static
// configuration tables from the promotions database, and tournament dates
// from the tables database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/briefcheck/pkg/promo"
	"github.com/Mindburn-Labs/briefcheck/pkg/template"
)

// TournamentLimit caps the tournament rows read per run.
const TournamentLimit = 1000

// Options tunes a SQLStore.
type Options struct {
	// Schema qualifies tables for dialects that use it. SQL Server uses
	// it only for the tournament table.
	Schema string
	// QPS limits queries per second; zero or less means unlimited.
	QPS    float64
	Logger *zap.Logger
}

// SQLStore runs the read queries. It is safe for concurrent use.
type SQLStore struct {
	db      *sql.DB
	dialect *Dialect
	limiter *rate.Limiter
	logger  *zap.Logger
	q       queries
}

type queries struct {
	segments    string
	multipliers string
	bands       string
	configs     string
	prizes      string
	stages      string
	tournaments string
}

// Open parses dsn, opens the matching driver and returns a store over it.
func Open(dsn string, opts Options) (*SQLStore, error) {
	target, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(target.Dialect.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", target.Dialect.Name, err)
	}
	return New(db, target.Dialect, opts), nil
}

// New wraps an already opened database.
func New(db *sql.DB, d *Dialect, opts Options) *SQLStore {
	limit := rate.Inf
	burst := 1
	if opts.QPS > 0 {
		limit = rate.Limit(opts.QPS)
		burst = max(1, int(opts.QPS))
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:      db,
		dialect: d,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("dialect", d.Name)),
		q:       buildQueries(d, opts.Schema),
	}
}

func buildQueries(d *Dialect, schema string) queries {
	seg := d.Table(areaExecution, schema, "trx_ejecucion_segmento")
	cfg := func(name string) string { return d.Table(areaConfiguration, schema, name) }
	p1 := d.Placeholder(1)
	bySegment := "WHERE e.id_ejecucion_segmento = " + p1

	cols, suffix := d.limit("id, id_torneo, nombre_promocion, fecha_inicio_torneo AS inicio, fecha_fin_torneo AS fin", TournamentLimit)

	return queries{
		segments: fmt.Sprintf("SELECT id_ejecucion_segmento, nombre_segmento FROM %s WHERE id_promocion = %s AND fecha_inicio <= %s AND fecha_fin >= %s ORDER BY id_ejecucion_segmento",
			seg, p1, d.Now, d.Now),
		multipliers: fmt.Sprintf("SELECT m.valor_multiplicador FROM %s e JOIN %s m ON e.id_calendario_multiplicador = m.id_calendario %s",
			seg, cfg("cfg_cronograma_multiplicador"), bySegment),
		bands: fmt.Sprintf("SELECT eq.condicion_minima, eq.condicion_maxima, eq.valor_puntaje FROM %s e JOIN %s eq ON e.id_equivalencia_Puntaje = eq.id_equivalencia_puntaje %s",
			seg, cfg("cfg_Equivalencia_Puntaje_Detalle"), bySegment),
		configs: fmt.Sprintf("SELECT cf.codigo_compuesto, cf.valor_entero FROM %s e JOIN %s cf ON e.id_configuracion = cf.id_configuracion %s",
			seg, cfg("cfg_configuracion_detalle"), bySegment),
		prizes: fmt.Sprintf("SELECT p.condicion_minima, p.condicion_maxima, p.valor_premio, p.cantidad_ganadores FROM %s e JOIN %s p ON e.id_premio = p.id_premio %s ORDER BY p.valor_premio",
			seg, cfg("cfg_premio_detalle"), bySegment),
		stages: fmt.Sprintf("SELECT et.nombre_etapa, et.fecha_inicio, et.fecha_fin FROM %s e JOIN %s et ON e.id_ejecucion_segmento = et.id_ejecucion_segmento %s ORDER BY et.fecha_inicio ASC",
			seg, cfg("cfg_etapa"), bySegment),
		tournaments: fmt.Sprintf("SELECT %s FROM %s WHERE fecha_inicio_torneo >= %s AND id_torneo = 1 ORDER BY id%s",
			cols, d.Table(areaTournaments, schema, "s_torneo_mesas.configuracion"), d.Now, suffix),
	}
}

// Dialect returns the store's dialect.
func (s *SQLStore) Dialect() *Dialect { return s.dialect }

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) query(ctx context.Context, name, query string, args ...any) (*sql.Rows, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.logger.Debug("query", zap.String("query", name), zap.Duration("elapsed", time.Since(start)))
	return rows, nil
}

// ActiveSegments lists the segments of a campaign whose date range covers
// the current time.
func (s *SQLStore) ActiveSegments(ctx context.Context, campaignID int64) ([]promo.Segment, error) {
	rows, err := s.query(ctx, "segments", s.q.segments, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.Segment
	for rows.Next() {
		var (
			seg  promo.Segment
			name sql.NullString
		)
		if err := rows.Scan(&seg.ID, &name); err != nil {
			return nil, fmt.Errorf("segments: %w", err)
		}
		seg.Name = name.String
		out = append(out, seg)
	}
	return out, rows.Err()
}

// Stages lists the recorded stages of a segment ordered by start.
func (s *SQLStore) Stages(ctx context.Context, segmentID int64) ([]promo.StageRecord, error) {
	rows, err := s.query(ctx, "stages", s.q.stages, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.StageRecord
	for rows.Next() {
		var (
			name       sql.NullString
			start, end sql.NullTime
		)
		if err := rows.Scan(&name, &start, &end); err != nil {
			return nil, fmt.Errorf("stages: %w", err)
		}
		rec := promo.StageRecord{Name: name.String}
		if start.Valid {
			rec.Start = &start.Time
		}
		if end.Valid {
			rec.End = &end.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Multipliers lists the multiplier values of a segment's calendar. NULL
// values are skipped and logged.
func (s *SQLStore) Multipliers(ctx context.Context, segmentID int64) ([]float64, error) {
	rows, err := s.query(ctx, "multipliers", s.q.multipliers, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	nulls := 0
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("multipliers: %w", err)
		}
		if !v.Valid {
			nulls++
			continue
		}
		out = append(out, v.Float64)
	}
	if nulls > 0 {
		s.logger.Warn("skipped NULL multiplier values", zap.Int64("segment", segmentID), zap.Int("rows", nulls))
	}
	return out, rows.Err()
}

func (s *SQLStore) Bands(ctx context.Context, segmentID int64) ([]template.Band, error) {
	rows, err := s.query(ctx, "bands", s.q.bands, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []template.Band
	for rows.Next() {
		var (
			lo, score sql.NullFloat64
			hi        sql.NullFloat64
		)
		if err := rows.Scan(&lo, &hi, &score); err != nil {
			return nil, fmt.Errorf("bands: %w", err)
		}
		b := template.Band{Min: lo.Float64, Score: score.Float64}
		if hi.Valid {
			v := hi.Float64
			b.Max = &v
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Configs lists the flat configuration rows. A NULL value is kept as nil.
func (s *SQLStore) Configs(ctx context.Context, segmentID int64) ([]promo.ConfigRow, error) {
	rows, err := s.query(ctx, "configs", s.q.configs, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.ConfigRow
	for rows.Next() {
		var (
			code  sql.NullString
			value sql.NullInt64
		)
		if err := rows.Scan(&code, &value); err != nil {
			return nil, fmt.Errorf("configs: %w", err)
		}
		row := promo.ConfigRow{Code: code.String}
		if value.Valid {
			row.Value = value.Int64
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Prizes lists the prize rows. NULL columns read as 0.
func (s *SQLStore) Prizes(ctx context.Context, segmentID int64) ([]template.PrizeTier, error) {
	rows, err := s.query(ctx, "prizes", s.q.prizes, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []template.PrizeTier
	for rows.Next() {
		var lo, hi, amount, winners sql.NullFloat64
		if err := rows.Scan(&lo, &hi, &amount, &winners); err != nil {
			return nil, fmt.Errorf("prizes: %w", err)
		}
		out = append(out, template.PrizeTier{
			ValueMin:    lo.Float64,
			ValueMax:    hi.Float64,
			PrizeAmount: amount.Float64,
			WinnerCount: winners.Float64,
		})
	}
	return out, rows.Err()
}

// UpcomingTournaments lists tournament rows starting from now on. Instants
// are rendered with FormatInstant.
func (s *SQLStore) UpcomingTournaments(ctx context.Context) ([]promo.TournamentDate, error) {
	rows, err := s.query(ctx, "tournaments", s.q.tournaments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.TournamentDate
	for rows.Next() {
		var (
			t          promo.TournamentDate
			name       sql.NullString
			start, end sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.TournamentID, &name, &start, &end); err != nil {
			return nil, fmt.Errorf("tournaments: %w", err)
		}
		t.Promotion = name.String
		t.Start = FormatInstant(start)
		t.End = FormatInstant(end)
		out = append(out, t)
	}
	return out, rows.Err()
}

// FormatInstant renders a nullable timestamp as "2006-01-02 15:04:05", with
// microseconds when present and "None" when NULL.
func FormatInstant(t sql.NullTime) string {
	if !t.Valid {
		return "None"
	}
	if t.Time.Nanosecond()/1000 != 0 {
		return t.Time.Format("2006-01-02 15:04:05.000000")
	}
	return t.Time.Format("2006-01-02 15:04:05")
}
