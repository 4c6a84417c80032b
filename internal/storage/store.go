package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the embedded time-series relational store described in
// spec.md §4.5: flows, their attributes, and the typed time series
// attached to each flow. A single *sql.DB serializes writers; the
// ingest demultiplexer is expected to hold the only writing handle
// (spec.md §5), so Store does no locking of its own beyond what
// database/sql already provides.
//
// Grounded on original_source/ts-storage/src/sqlite/db.rs's
// SQLiteTSDB, rendered against database/sql since no sqlite-backed
// library appears anywhere in the retrieved pack; modernc.org/sqlite
// is named (not grounded) per that gap.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to a sqlite-backed store at path and runs
// its schema. As in the Rust original, a setup failure is fatal at
// construction time rather than deferred to first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoid SQLITE_BUSY churn

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: setup: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateFlow inserts a flow if it doesn't already exist, or returns the
// existing row for the same 5-tuple. Mirrors create_flow in
// ts-storage/src/sqlite/db.rs, which inserts then re-selects rather
// than relying on RETURNING.
func (s *Store) CreateFlow(key FlowKey) (Flow, error) {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO flows (src, dst, sport, dport, l4proto) VALUES (?, ?, ?, ?, ?)`,
		key.Src, key.Dst, key.SPort, key.DPort, key.L4Proto,
	)
	if err != nil {
		return Flow{}, fmt.Errorf("storage: create flow: %w", err)
	}
	f, err := s.GetFlow(key)
	if err != nil {
		return Flow{}, err
	}
	return *f, nil
}

// GetFlow looks up a flow by its 5-tuple.
func (s *Store) GetFlow(key FlowKey) (*Flow, error) {
	row := s.db.QueryRow(
		`SELECT id, src, dst, sport, dport, l4proto FROM flows
		 WHERE src = ? AND dst = ? AND sport = ? AND dport = ? AND l4proto = ?`,
		key.Src, key.Dst, key.SPort, key.DPort, key.L4Proto,
	)
	var f Flow
	if err := row.Scan(&f.ID, &f.Key.Src, &f.Key.Dst, &f.Key.SPort, &f.Key.DPort, &f.Key.L4Proto); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("storage: get flow: %w", err)
	}
	return &f, nil
}

// GetFlowByID looks up a flow by its primary key.
func (s *Store) GetFlowByID(id int64) (*Flow, error) {
	row := s.db.QueryRow(`SELECT id, src, dst, sport, dport, l4proto FROM flows WHERE id = ?`, id)
	var f Flow
	if err := row.Scan(&f.ID, &f.Key.Src, &f.Key.Dst, &f.Key.SPort, &f.Key.DPort, &f.Key.L4Proto); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("storage: get flow by id: %w", err)
	}
	return &f, nil
}

// DeleteFlow removes a flow row. Only time_series_data cascades on
// delete; time_series and flow_attributes reference flows without ON
// DELETE CASCADE, so with foreign keys enforced the delete fails while
// the flow still has series or attributes.
func (s *Store) DeleteFlow(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM flows WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete flow: %w", err)
	}
	return nil
}

// ListFlows returns a cursor over every flow, oldest id first.
func (s *Store) ListFlows() (*Cursor[Flow], error) {
	rows, err := s.db.Query(`SELECT id, src, dst, sport, dport, l4proto FROM flows ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list flows: %w", err)
	}
	return newCursor(rows, scanFlow), nil
}

// AddFlowAttribute attaches a named value to a flow. The attribute must
// not already exist under that name; use SetFlowAttribute to replace.
func (s *Store) AddFlowAttribute(flowID int64, name string, value Value) (FlowAttribute, error) {
	col, err := value.Type.column()
	if err != nil {
		return FlowAttribute{}, err
	}
	res, err := s.db.Exec(
		fmt.Sprintf(`INSERT INTO flow_attributes (flow_id, name, %s) VALUES (?, ?, ?)`, col),
		flowID, name, columnArg(value),
	)
	if err != nil {
		return FlowAttribute{}, fmt.Errorf("storage: add flow attribute: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return FlowAttribute{}, fmt.Errorf("storage: add flow attribute: %w", err)
	}
	return FlowAttribute{ID: id, FlowID: flowID, Name: name, Value: value}, nil
}

// SetFlowAttribute replaces a flow attribute's value, deleting and
// re-adding it as the Rust original does rather than issuing an UPDATE
// across four possibly-typed columns.
func (s *Store) SetFlowAttribute(flowID int64, name string, value Value) (FlowAttribute, error) {
	if _, err := s.db.Exec(`DELETE FROM flow_attributes WHERE flow_id = ? AND name = ?`, flowID, name); err != nil {
		return FlowAttribute{}, fmt.Errorf("storage: set flow attribute: %w", err)
	}
	return s.AddFlowAttribute(flowID, name, value)
}

// GetFlowAttributeByID looks up a single flow attribute row.
func (s *Store) GetFlowAttributeByID(id int64) (*FlowAttribute, error) {
	row := s.db.QueryRow(
		`SELECT id, flow_id, name, value_boolean, value_integer, value_float, value_text
		 FROM flow_attributes WHERE id = ?`, id,
	)
	var (
		a      FlowAttribute
		vb, vi int64
		vf     float64
		vt     sql.NullString
	)
	if err := row.Scan(&a.ID, &a.FlowID, &a.Name, &vb, &vi, &vf, &vt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSeriesNotFound
		}
		return nil, fmt.Errorf("storage: get flow attribute: %w", err)
	}
	a.Value = valueFromColumns(vb, vi, vf, vt)
	return &a, nil
}

// ListFlowAttributes returns a cursor over every attribute of a flow.
func (s *Store) ListFlowAttributes(flowID int64) (*Cursor[FlowAttribute], error) {
	rows, err := s.db.Query(
		`SELECT id, flow_id, name, value_boolean, value_integer, value_float, value_text
		 FROM flow_attributes WHERE flow_id = ? ORDER BY id ASC`, flowID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list flow attributes: %w", err)
	}
	return newCursor(rows, scanFlowAttribute), nil
}

// DeleteFlowAttribute removes a single flow attribute by id.
func (s *Store) DeleteFlowAttribute(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM flow_attributes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete flow attribute: %w", err)
	}
	return nil
}

// CreateTimeSeries creates a named, typed series under a flow. The
// (flow_id, name) pair is unique; a second call with the same pair
// returns the existing row rather than erroring, matching the
// eager-creation pattern in flow_tracker.rs where every field gets its
// series on first sight of a new flow.
func (s *Store) CreateTimeSeries(flowID int64, name string, typ ValueType) (TimeSeries, error) {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO time_series (flow_id, name, type) VALUES (?, ?, ?)`,
		flowID, name, int(typ),
	)
	if err != nil {
		return TimeSeries{}, fmt.Errorf("storage: create time series: %w", err)
	}
	row := s.db.QueryRow(
		`SELECT time_series_id, flow_id, name, type FROM time_series WHERE flow_id = ? AND name = ?`,
		flowID, name,
	)
	var ts TimeSeries
	var got int64
	if err := row.Scan(&ts.ID, &ts.FlowID, &ts.Name, &got); err != nil {
		return TimeSeries{}, fmt.Errorf("storage: create time series: %w", err)
	}
	ts.Type = ValueType(got)
	return ts, nil
}

// GetTimeSeriesByID looks up a series by its primary key.
func (s *Store) GetTimeSeriesByID(id int64) (*TimeSeries, error) {
	row := s.db.QueryRow(`SELECT time_series_id, flow_id, name, type FROM time_series WHERE time_series_id = ?`, id)
	var ts TimeSeries
	var typ int64
	if err := row.Scan(&ts.ID, &ts.FlowID, &ts.Name, &typ); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSeriesNotFound
		}
		return nil, fmt.Errorf("storage: get time series: %w", err)
	}
	ts.Type = ValueType(typ)
	return &ts, nil
}

// ListTimeSeries returns a cursor over every series of a flow.
func (s *Store) ListTimeSeries(flowID int64) (*Cursor[TimeSeries], error) {
	rows, err := s.db.Query(
		`SELECT time_series_id, flow_id, name, type FROM time_series WHERE flow_id = ? ORDER BY time_series_id ASC`,
		flowID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list time series: %w", err)
	}
	return newCursor(rows, scanTimeSeries), nil
}

// DeleteTimeSeries removes a series and, via ON DELETE CASCADE, its
// data points. Called by the ingest flush path for series that ended
// up empty (flow_tracker.rs's flush drops empty series rather than
// persisting them).
func (s *Store) DeleteTimeSeries(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM time_series WHERE time_series_id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete time series: %w", err)
	}
	return nil
}

// InsertDataPoint appends one sample to a series. The value's type must
// match the series' declared type.
func (s *Store) InsertDataPoint(seriesID int64, p DataPoint) error {
	ts, err := s.GetTimeSeriesByID(seriesID)
	if err != nil {
		return err
	}
	want := Value{Type: ts.Type}
	if !p.Value.sameType(want) {
		return fmt.Errorf("%w: series is %s, point is %s", ErrTypeMismatch, ts.Type, p.Value.Type)
	}
	col, err := ts.Type.column()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		fmt.Sprintf(`INSERT INTO time_series_data (time_series_id, timestamp, %s) VALUES (?, ?, ?)`, col),
		seriesID, p.Timestamp, columnArg(p.Value),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePoint
		}
		return fmt.Errorf("storage: insert data point: %w", err)
	}
	return nil
}

// InsertMultiplePoints appends a batch of samples to a series in a
// single statement, as insert_multiple_points in the Rust original
// hand-builds one "VALUES (...),(...),..." statement rather than
// issuing one INSERT per point. The whole batch is rejected atomically
// if any point's type or (series, timestamp) uniqueness fails.
func (s *Store) InsertMultiplePoints(seriesID int64, points []DataPoint) error {
	if len(points) == 0 {
		return nil
	}
	ts, err := s.GetTimeSeriesByID(seriesID)
	if err != nil {
		return err
	}
	want := Value{Type: ts.Type}
	col, err := ts.Type.column()
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO time_series_data (time_series_id, timestamp, %s) VALUES ", col)
	args := make([]any, 0, len(points)*3)
	for i, p := range points {
		if !p.Value.sameType(want) {
			return fmt.Errorf("%w: series is %s, point %d is %s", ErrTypeMismatch, ts.Type, i, p.Value.Type)
		}
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?)")
		args = append(args, seriesID, p.Timestamp, columnArg(p.Value))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: insert multiple points: %w", err)
	}
	if _, err := tx.Exec(sb.String(), args...); err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return ErrDuplicatePoint
		}
		return fmt.Errorf("storage: insert multiple points: %w", err)
	}
	return tx.Commit()
}

// GetDataPoints returns a cursor over a series' samples, oldest first.
func (s *Store) GetDataPoints(seriesID int64) (*Cursor[DataPoint], error) {
	rows, err := s.db.Query(
		`SELECT timestamp, value_boolean, value_integer, value_float, value_text
		 FROM time_series_data WHERE time_series_id = ? ORDER BY timestamp ASC`,
		seriesID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get data points: %w", err)
	}
	return newCursor(rows, scanDataPoint), nil
}

// GetDataPointsCount reports how many samples a series holds.
func (s *Store) GetDataPointsCount(seriesID int64) (int64, error) {
	var n int64
	row := s.db.QueryRow(`SELECT COUNT(*) FROM time_series_data WHERE time_series_id = ?`, seriesID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count data points: %w", err)
	}
	return n, nil
}

// GetTimeSeriesBounds reports a series' x (timestamp) and, for numeric
// series, y (value) extent. Y bounds are nil for boolean and string
// series, mirroring get_time_series_bounds in the Rust original.
func (s *Store) GetTimeSeriesBounds(seriesID int64) (Bounds, error) {
	ts, err := s.GetTimeSeriesByID(seriesID)
	if err != nil {
		return Bounds{}, err
	}

	var b Bounds
	xrow := s.db.QueryRow(`SELECT MIN(timestamp), MAX(timestamp) FROM time_series_data WHERE time_series_id = ?`, seriesID)
	var xmin, xmax sql.NullFloat64
	if err := xrow.Scan(&xmin, &xmax); err != nil {
		return Bounds{}, fmt.Errorf("storage: time series bounds: %w", err)
	}
	if !xmin.Valid {
		return Bounds{}, ErrSeriesEmpty
	}
	b.XMin, b.XMax = xmin.Float64, xmax.Float64

	if ts.Type == TypeBool || ts.Type == TypeString {
		return b, nil
	}

	col, err := ts.Type.column()
	if err != nil {
		return Bounds{}, err
	}
	yrow := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM time_series_data WHERE time_series_id = ? ORDER BY %s ASC LIMIT 1`, col, col),
		seriesID,
	)
	ymin, err := scanTypedValue(yrow, ts.Type)
	if err != nil {
		return Bounds{}, fmt.Errorf("storage: time series bounds: %w", err)
	}
	yrow = s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM time_series_data WHERE time_series_id = ? ORDER BY %s DESC LIMIT 1`, col, col),
		seriesID,
	)
	ymax, err := scanTypedValue(yrow, ts.Type)
	if err != nil {
		return Bounds{}, fmt.Errorf("storage: time series bounds: %w", err)
	}
	b.YMin, b.YMax = &ymin, &ymax
	return b, nil
}

// GetFlowBounds aggregates the bounds of every time series under a
// flow. Errors if the flow has no series at all.
func (s *Store) GetFlowBounds(flowID int64) (Bounds, error) {
	cur, err := s.ListTimeSeries(flowID)
	if err != nil {
		return Bounds{}, err
	}
	// Finish the listing before querying each series: the store runs on
	// a single connection, which an open cursor holds.
	var ids []int64
	for {
		ts, ok := cur.Next()
		if !ok {
			break
		}
		ids = append(ids, ts.ID)
	}
	err = cur.Err()
	cur.Close()
	if err != nil {
		return Bounds{}, err
	}

	var (
		agg   Bounds
		found bool
	)
	for _, id := range ids {
		b, err := s.GetTimeSeriesBounds(id)
		if err == ErrSeriesEmpty {
			continue
		}
		if err != nil {
			return Bounds{}, err
		}
		if !found {
			agg = b
			found = true
			continue
		}
		if b.XMin < agg.XMin {
			agg.XMin = b.XMin
		}
		if b.XMax > agg.XMax {
			agg.XMax = b.XMax
		}
	}
	if !found {
		return Bounds{}, ErrSeriesEmpty
	}
	return agg, nil
}

func scanTypedValue(row *sql.Row, typ ValueType) (Value, error) {
	switch typ {
	case TypeInt:
		var v int64
		if err := row.Scan(&v); err != nil {
			return Value{}, err
		}
		return IntValue(v), nil
	case TypeFloat:
		var v float64
		if err := row.Scan(&v); err != nil {
			return Value{}, err
		}
		return FloatValue(v), nil
	default:
		return Value{}, fmt.Errorf("%w: %s has no y bounds", ErrUnknownType, typ)
	}
}

// columnArg picks the driver-bound argument for whichever column a
// Value targets; the other three typed columns keep their "-1"
// DEFAULT, so only the live column needs binding.
func columnArg(v Value) any {
	switch v.Type {
	case TypeInt:
		return v.I
	case TypeFloat:
		return v.F
	case TypeBool:
		return v.B
	case TypeString:
		return v.S
	default:
		return nil
	}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
