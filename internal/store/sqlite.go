package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gwlsn/rdcompare/internal/compare"
	"github.com/gwlsn/rdcompare/internal/metrics"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex // Protects concurrent access
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) a SQLite database at dbPath and
// brings its schema up to date.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// lookupTable holds the fixed statements for one name lookup table.
type lookupTable struct {
	name     string
	insert   string
	selectID string
}

var (
	encodersLookup = lookupTable{
		name:     "encoder",
		insert:   "INSERT INTO encoders_lookup (name) VALUES (?) ON CONFLICT(name) DO NOTHING",
		selectID: "SELECT id FROM encoders_lookup WHERE name = ?",
	}
	videosLookup = lookupTable{
		name:     "video",
		insert:   "INSERT INTO videos_lookup (name) VALUES (?) ON CONFLICT(name) DO NOTHING",
		selectID: "SELECT id FROM videos_lookup WHERE name = ?",
	}
)

// EncoderID returns the id for an encoder name, inserting it if missing.
func (s *SQLiteStore) EncoderID(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lookupID(s.db, encodersLookup, name)
}

// VideoID returns the id for a video name, inserting it if missing.
func (s *SQLiteStore) VideoID(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lookupID(s.db, videosLookup, name)
}

// lookupID inserts name into a lookup table if absent and returns its id.
func lookupID(q queryer, t lookupTable, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("empty %s name", t.name)
	}
	if _, err := q.Exec(t.insert, name); err != nil {
		return 0, fmt.Errorf("insert %s %q: %w", t.name, name, err)
	}
	var id int64
	if err := q.QueryRow(t.selectID, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select %s %q: %w", t.name, name, err)
	}
	return id, nil
}

// lookupCache memoizes lookup ids for the duration of one transaction.
type lookupCache struct {
	q      queryer
	table  lookupTable
	byName map[string]int64
}

func newLookupCache(q queryer, table lookupTable) *lookupCache {
	return &lookupCache{q: q, table: table, byName: make(map[string]int64)}
}

func (c *lookupCache) id(name string) (int64, error) {
	if id, ok := c.byName[name]; ok {
		return id, nil
	}
	id, err := lookupID(c.q, c.table, name)
	if err != nil {
		return 0, err
	}
	c.byName[name] = id
	return id, nil
}

// UpsertMeasurements writes every row of t in one transaction.
func (s *SQLiteStore) UpsertMeasurements(t *metrics.Table) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	encoders := newLookupCache(tx, encodersLookup)
	videos := newLookupCache(tx, videosLookup)

	rowStmt, err := tx.Prepare(`
		INSERT INTO measurements (
			encoder_id, commit_hash, preset, video_id, size, type,
			bitrate, first_time, second_time, decode_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(encoder_id, commit_hash, preset, video_id, bitrate) DO UPDATE SET
			size = excluded.size,
			type = excluded.type,
			first_time = excluded.first_time,
			second_time = excluded.second_time,
			decode_time = excluded.decode_time
		RETURNING id
	`)
	if err != nil {
		return 0, err
	}
	defer rowStmt.Close()

	clearScores, err := tx.Prepare("DELETE FROM measurement_scores WHERE measurement_id = ?")
	if err != nil {
		return 0, err
	}
	defer clearScores.Close()

	scoreStmt, err := tx.Prepare(`
		INSERT INTO measurement_scores (measurement_id, metric, value) VALUES (?, ?, ?)
		ON CONFLICT(measurement_id, metric) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return 0, err
	}
	defer scoreStmt.Close()

	n := 0
	for _, r := range t.Rows() {
		encID, err := encoders.id(r.Encoder)
		if err != nil {
			return 0, err
		}
		vidID, err := videos.id(r.Video)
		if err != nil {
			return 0, err
		}

		var id int64
		err = rowStmt.QueryRow(
			encID, r.Commit, r.Preset, vidID, r.Size, r.Type,
			r.Bitrate, r.FirstTime, r.SecondTime, r.DecodeTime,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("upsert measurement %s/%s@%g: %w", r.Encoder, r.Video, r.Bitrate, err)
		}

		// A re-ingested row carries exactly the new scores.
		if _, err := clearScores.Exec(id); err != nil {
			return 0, fmt.Errorf("clear scores for %s/%s@%g: %w", r.Encoder, r.Video, r.Bitrate, err)
		}
		for metric, value := range r.Quality {
			if _, err := scoreStmt.Exec(id, metric, value); err != nil {
				return 0, fmt.Errorf("upsert score %s: %w", metric, err)
			}
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// LoadMeasurements returns every stored measurement in insertion order.
// Only scores for the schema's quality columns are attached.
func (s *SQLiteStore) LoadMeasurements(schema metrics.Schema) (*metrics.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scores, err := s.loadScores(schema)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT m.id, e.name, m.commit_hash, m.preset, v.name, m.size, m.type,
			m.bitrate, m.first_time, m.second_time, m.decode_time
		FROM measurements m
		JOIN encoders_lookup e ON e.id = m.encoder_id
		JOIN videos_lookup v ON v.id = m.video_id
		ORDER BY m.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := metrics.NewTable(schema)
	for rows.Next() {
		var id int64
		var r metrics.Row
		err := rows.Scan(&id, &r.Encoder, &r.Commit, &r.Preset, &r.Video, &r.Size, &r.Type,
			&r.Bitrate, &r.FirstTime, &r.SecondTime, &r.DecodeTime)
		if err != nil {
			return nil, err
		}
		r.Quality = scores[id]
		if r.Quality == nil {
			r.Quality = map[string]float64{}
		}
		table.Append(r)
	}
	return table, rows.Err()
}

func (s *SQLiteStore) loadScores(schema metrics.Schema) (map[int64]map[string]float64, error) {
	rows, err := s.db.Query("SELECT measurement_id, metric, value FROM measurement_scores")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[int64]map[string]float64)
	for rows.Next() {
		var id int64
		var metric string
		var value float64
		if err := rows.Scan(&id, &metric, &value); err != nil {
			return nil, err
		}
		if !schema.HasMetric(metric) {
			continue
		}
		if scores[id] == nil {
			scores[id] = make(map[string]float64)
		}
		scores[id][metric] = value
	}
	return scores, rows.Err()
}

// UpsertComparisons writes rows as one batch in a single transaction.
func (s *SQLiteStore) UpsertComparisons(rows []compare.Row, runID uuid.UUID, createdAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	encoders := newLookupCache(tx, encodersLookup)
	videos := newLookupCache(tx, videosLookup)

	calcStmt, err := tx.Prepare(`
		INSERT INTO calculations (
			baseline_encoder_id, baseline_commit, baseline_preset,
			target_encoder_id, target_commit, target_preset, video_id,
			encode_time_diff_pct, decode_time_diff_pct, run_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(baseline_encoder_id, baseline_commit, baseline_preset,
			target_encoder_id, target_commit, target_preset, video_id) DO UPDATE SET
			encode_time_diff_pct = excluded.encode_time_diff_pct,
			decode_time_diff_pct = excluded.decode_time_diff_pct,
			run_id = excluded.run_id,
			created_at = excluded.created_at
		RETURNING id
	`)
	if err != nil {
		return 0, err
	}
	defer calcStmt.Close()

	metricStmt, err := tx.Prepare(`
		INSERT INTO calculation_metrics (calculation_id, metric, position, bd_rate, bd_snr)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(calculation_id, metric) DO UPDATE SET
			position = excluded.position,
			bd_rate = excluded.bd_rate,
			bd_snr = excluded.bd_snr
	`)
	if err != nil {
		return 0, err
	}
	defer metricStmt.Close()

	clearMetrics, err := tx.Prepare("DELETE FROM calculation_metrics WHERE calculation_id = ?")
	if err != nil {
		return 0, err
	}
	defer clearMetrics.Close()

	stamp := formatTime(createdAt)
	for _, r := range rows {
		baseEnc, err := encoders.id(r.Baseline.Encoder)
		if err != nil {
			return 0, err
		}
		targetEnc, err := encoders.id(r.Target.Encoder)
		if err != nil {
			return 0, err
		}
		vidID, err := videos.id(r.Video)
		if err != nil {
			return 0, err
		}

		var id int64
		err = calcStmt.QueryRow(
			baseEnc, r.Baseline.Commit, r.Baseline.Preset,
			targetEnc, r.Target.Commit, r.Target.Preset, vidID,
			r.EncodeTimeDiffPct, r.DecodeTimeDiffPct, runID.String(), stamp,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("upsert comparison %s on %s: %w", r.Target, r.Video, err)
		}

		// Metrics absent from this batch must not survive under its stamp.
		if _, err := clearMetrics.Exec(id); err != nil {
			return 0, fmt.Errorf("clear comparison metrics %s on %s: %w", r.Target, r.Video, err)
		}
		for i, d := range r.Deltas {
			if _, err := metricStmt.Exec(id, d.Metric, i, d.BDRate, d.BDSNR); err != nil {
				return 0, fmt.Errorf("upsert comparison metric %s: %w", d.Metric, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Comparisons returns stored comparisons matching f, oldest first.
func (s *SQLiteStore) Comparisons(f ComparisonFilter) ([]Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.sql()

	query := `
		SELECT c.id, be.name, c.baseline_commit, c.baseline_preset,
			te.name, c.target_commit, c.target_preset, v.name,
			c.encode_time_diff_pct, c.decode_time_diff_pct, c.run_id, c.created_at
		FROM calculations c
		JOIN encoders_lookup be ON be.id = c.baseline_encoder_id
		JOIN encoders_lookup te ON te.id = c.target_encoder_id
		JOIN videos_lookup v ON v.id = c.video_id`
	query += where + "\n\t\tORDER BY c.id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}

	var out []Comparison
	index := make(map[int64]int)
	for rows.Next() {
		id, c, err := scanComparison(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[id] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(out) == 0 {
		return out, nil
	}
	if err := s.attachDeltas(out, index, where, args); err != nil {
		return nil, err
	}
	return out, nil
}

// sql renders f as a WHERE clause over calculations c joined to
// videos_lookup v, with its arguments. Empty when f matches everything.
func (f ComparisonFilter) sql() (string, []interface{}) {
	var where []string
	var args []interface{}
	if f.Video != "" {
		where = append(where, "v.name = ?")
		args = append(args, f.Video)
	}
	if f.TargetCommit != "" {
		where = append(where, "c.target_commit = ?")
		args = append(args, f.TargetCommit)
	}
	if f.RunID != uuid.Nil {
		where = append(where, "c.run_id = ?")
		args = append(args, f.RunID.String())
	}
	if len(where) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(where, " AND "), args
}

// attachDeltas loads metric deltas for the calculations selected by the same
// filter that produced out.
func (s *SQLiteStore) attachDeltas(out []Comparison, index map[int64]int, where string, args []interface{}) error {
	rows, err := s.db.Query(`
		SELECT cm.calculation_id, cm.metric, cm.bd_rate, cm.bd_snr
		FROM calculation_metrics cm
		JOIN calculations c ON c.id = cm.calculation_id
		JOIN videos_lookup v ON v.id = c.video_id`+where+`
		ORDER BY cm.calculation_id ASC, cm.position ASC
	`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var d compare.MetricDelta
		if err := rows.Scan(&id, &d.Metric, &d.BDRate, &d.BDSNR); err != nil {
			return err
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		out[i].Deltas = append(out[i].Deltas, d)
	}
	return rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanComparison(row rowScanner) (int64, Comparison, error) {
	var id int64
	var c Comparison
	var runID, createdAt string

	err := row.Scan(
		&id, &c.Baseline.Encoder, &c.Baseline.Commit, &c.Baseline.Preset,
		&c.Target.Encoder, &c.Target.Commit, &c.Target.Preset, &c.Video,
		&c.EncodeTimeDiffPct, &c.DecodeTimeDiffPct, &runID, &createdAt,
	)
	if err != nil {
		return 0, Comparison{}, err
	}

	c.RunID, err = uuid.Parse(runID)
	if err != nil {
		return 0, Comparison{}, fmt.Errorf("calculation %d: bad run id: %w", id, err)
	}
	c.CreatedAt = parseTime(createdAt)
	return id, c, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
