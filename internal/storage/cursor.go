package storage

import "database/sql"

// Cursor is a lazy, forward-only sequence of rows — the Go rendering of
// the "lazy sequence" the operation table in spec.md §4.5 describes for
// list_flows/list_time_series/get_data_points. No iterator library
// appears anywhere in the pack, so this wraps *sql.Rows directly rather
// than reaching for a third-party generator helper.
type Cursor[T any] struct {
	rows *sql.Rows
	scan func(*sql.Rows) (T, error)
	err  error
}

func newCursor[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) *Cursor[T] {
	return &Cursor[T]{rows: rows, scan: scan}
}

// Next advances the cursor and reports whether a value was produced.
// Once it returns false, check Err to distinguish end-of-sequence from
// a scan failure.
func (c *Cursor[T]) Next() (T, bool) {
	var zero T
	if c.err != nil || !c.rows.Next() {
		return zero, false
	}
	v, err := c.scan(c.rows)
	if err != nil {
		c.err = err
		return zero, false
	}
	return v, true
}

// Err returns the first error encountered while iterating, if any.
func (c *Cursor[T]) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the underlying *sql.Rows. Safe to call multiple times.
func (c *Cursor[T]) Close() error { return c.rows.Close() }

func scanFlow(rows *sql.Rows) (Flow, error) {
	var f Flow
	if err := rows.Scan(&f.ID, &f.Key.Src, &f.Key.Dst, &f.Key.SPort, &f.Key.DPort, &f.Key.L4Proto); err != nil {
		return Flow{}, err
	}
	return f, nil
}

func scanFlowAttribute(rows *sql.Rows) (FlowAttribute, error) {
	var (
		a                          FlowAttribute
		vb, vi                     int64
		vf                         float64
		vt                         sql.NullString
	)
	if err := rows.Scan(&a.ID, &a.FlowID, &a.Name, &vb, &vi, &vf, &vt); err != nil {
		return FlowAttribute{}, err
	}
	a.Value = valueFromColumns(vb, vi, vf, vt)
	return a, nil
}

func scanTimeSeries(rows *sql.Rows) (TimeSeries, error) {
	var t TimeSeries
	var typ int64
	if err := rows.Scan(&t.ID, &t.FlowID, &t.Name, &typ); err != nil {
		return TimeSeries{}, err
	}
	t.Type = ValueType(typ)
	return t, nil
}

func scanDataPoint(rows *sql.Rows) (DataPoint, error) {
	var (
		p                  DataPoint
		vb, vi             int64
		vf                 float64
		vt                 sql.NullString
	)
	if err := rows.Scan(&p.Timestamp, &vb, &vi, &vf, &vt); err != nil {
		return DataPoint{}, err
	}
	p.Value = valueFromColumns(vb, vi, vf, vt)
	return p, nil
}

// valueFromColumns rebuilds a Value from the four typed columns,
// trusting the "-1" sentinel convention in spec.md §6: whichever column
// isn't the live one carries -1 (or is NULL, for value_text).
func valueFromColumns(vb, vi int64, vf float64, vt sql.NullString) Value {
	switch {
	case vt.Valid:
		return StringValue(vt.String)
	case vb >= 0:
		return BoolValue(vb != 0)
	case vf >= 0:
		return FloatValue(vf)
	default:
		return IntValue(vi)
	}
}
