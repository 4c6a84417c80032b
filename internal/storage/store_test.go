package storage

import (
	"testing"

	"gotest.tools/v3/assert"
)

func testKey(t *testing.T, port int64) FlowKey {
	t.Helper()
	return FlowKey{Src: "10.0.0.1", Dst: "10.0.0.2", SPort: port, DPort: 443, L4Proto: 6}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateFlowIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	key := testKey(t, 51000)

	first, err := s.CreateFlow(key)
	assert.NilError(t, err)

	second, err := s.CreateFlow(key)
	assert.NilError(t, err)
	assert.Equal(t, first.ID, second.ID)

	byID, err := s.GetFlowByID(first.ID)
	assert.NilError(t, err)
	assert.DeepEqual(t, byID.Key, key)
}

func TestGetFlowNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetFlow(testKey(t, 1))
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestFlowAttributeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51001))
	assert.NilError(t, err)

	attr, err := s.AddFlowAttribute(flow.ID, "comm", StringValue("curl"))
	assert.NilError(t, err)

	got, err := s.GetFlowAttributeByID(attr.ID)
	assert.NilError(t, err)
	assert.Equal(t, got.Value.S, "curl")

	_, err = s.SetFlowAttribute(flow.ID, "comm", StringValue("wget"))
	assert.NilError(t, err)

	cur, err := s.ListFlowAttributes(flow.ID)
	assert.NilError(t, err)
	defer cur.Close()

	var names []string
	for {
		a, ok := cur.Next()
		if !ok {
			break
		}
		names = append(names, a.Name+"="+a.Value.S)
	}
	assert.NilError(t, cur.Err())
	assert.DeepEqual(t, names, []string{"comm=wget"})
}

func TestInsertDataPointRejectsTypeMismatch(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51002))
	assert.NilError(t, err)

	ts, err := s.CreateTimeSeries(flow.ID, "cwnd", TypeInt)
	assert.NilError(t, err)

	err = s.InsertDataPoint(ts.ID, DataPoint{Timestamp: 1.0, Value: StringValue("oops")})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestInsertDataPointRejectsDuplicateTimestamp(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51003))
	assert.NilError(t, err)
	ts, err := s.CreateTimeSeries(flow.ID, "cwnd", TypeInt)
	assert.NilError(t, err)

	assert.NilError(t, s.InsertDataPoint(ts.ID, DataPoint{Timestamp: 1.0, Value: IntValue(10)}))
	err = s.InsertDataPoint(ts.ID, DataPoint{Timestamp: 1.0, Value: IntValue(20)})
	assert.ErrorIs(t, err, ErrDuplicatePoint)
}

func TestInsertMultiplePointsIsAtomic(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51004))
	assert.NilError(t, err)
	ts, err := s.CreateTimeSeries(flow.ID, "rtt", TypeFloat)
	assert.NilError(t, err)

	batch := []DataPoint{
		{Timestamp: 1.0, Value: FloatValue(10.5)},
		{Timestamp: 2.0, Value: FloatValue(11.5)},
		{Timestamp: 1.0, Value: FloatValue(99.0)}, // duplicate of the first timestamp
	}
	err = s.InsertMultiplePoints(ts.ID, batch)
	assert.ErrorIs(t, err, ErrDuplicatePoint)

	n, err := s.GetDataPointsCount(ts.ID)
	assert.NilError(t, err)
	assert.Equal(t, n, int64(0)) // the whole batch was rejected, not a partial write
}

func TestGetTimeSeriesBounds(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51005))
	assert.NilError(t, err)
	ts, err := s.CreateTimeSeries(flow.ID, "rtt", TypeFloat)
	assert.NilError(t, err)

	assert.NilError(t, s.InsertMultiplePoints(ts.ID, []DataPoint{
		{Timestamp: 1.0, Value: FloatValue(30.0)},
		{Timestamp: 2.0, Value: FloatValue(10.0)},
		{Timestamp: 3.0, Value: FloatValue(20.0)},
	}))

	b, err := s.GetTimeSeriesBounds(ts.ID)
	assert.NilError(t, err)
	assert.Equal(t, b.XMin, 1.0)
	assert.Equal(t, b.XMax, 3.0)
	assert.Equal(t, b.YMin.F, 10.0)
	assert.Equal(t, b.YMax.F, 30.0)
}

func TestGetTimeSeriesBoundsSkipsYForStringSeries(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51006))
	assert.NilError(t, err)
	ts, err := s.CreateTimeSeries(flow.ID, "state", TypeString)
	assert.NilError(t, err)

	assert.NilError(t, s.InsertDataPoint(ts.ID, DataPoint{Timestamp: 1.0, Value: StringValue("ESTABLISHED")}))

	b, err := s.GetTimeSeriesBounds(ts.ID)
	assert.NilError(t, err)
	assert.Assert(t, b.YMin == nil)
	assert.Assert(t, b.YMax == nil)
}

func TestGetTimeSeriesBoundsEmptySeries(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51007))
	assert.NilError(t, err)
	ts, err := s.CreateTimeSeries(flow.ID, "rtt", TypeFloat)
	assert.NilError(t, err)

	_, err = s.GetTimeSeriesBounds(ts.ID)
	assert.ErrorIs(t, err, ErrSeriesEmpty)
}

func TestGetFlowBoundsAggregatesAcrossSeries(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51008))
	assert.NilError(t, err)

	a, err := s.CreateTimeSeries(flow.ID, "rtt", TypeFloat)
	assert.NilError(t, err)
	b, err := s.CreateTimeSeries(flow.ID, "cwnd", TypeInt)
	assert.NilError(t, err)

	assert.NilError(t, s.InsertDataPoint(a.ID, DataPoint{Timestamp: 5.0, Value: FloatValue(1.0)}))
	assert.NilError(t, s.InsertDataPoint(b.ID, DataPoint{Timestamp: 1.0, Value: IntValue(1)}))
	assert.NilError(t, s.InsertDataPoint(b.ID, DataPoint{Timestamp: 9.0, Value: IntValue(1)}))

	bounds, err := s.GetFlowBounds(flow.ID)
	assert.NilError(t, err)
	assert.Equal(t, bounds.XMin, 1.0)
	assert.Equal(t, bounds.XMax, 9.0)
}

func TestDeleteTimeSeriesCascadesDataPoints(t *testing.T) {
	s := openTestStore(t)
	flow, err := s.CreateFlow(testKey(t, 51009))
	assert.NilError(t, err)
	ts, err := s.CreateTimeSeries(flow.ID, "rtt", TypeFloat)
	assert.NilError(t, err)
	assert.NilError(t, s.InsertDataPoint(ts.ID, DataPoint{Timestamp: 1.0, Value: FloatValue(1.0)}))

	assert.NilError(t, s.DeleteTimeSeries(ts.ID))

	_, err = s.GetTimeSeriesByID(ts.ID)
	assert.ErrorIs(t, err, ErrSeriesNotFound)

	n, err := s.GetDataPointsCount(ts.ID)
	assert.NilError(t, err)
	assert.Equal(t, n, int64(0))
}

func TestListFlowsOrdersByID(t *testing.T) {
	s := openTestStore(t)
	f1, err := s.CreateFlow(testKey(t, 51010))
	assert.NilError(t, err)
	f2, err := s.CreateFlow(testKey(t, 51011))
	assert.NilError(t, err)

	cur, err := s.ListFlows()
	assert.NilError(t, err)
	defer cur.Close()

	var ids []int64
	for {
		f, ok := cur.Next()
		if !ok {
			break
		}
		ids = append(ids, f.ID)
	}
	assert.NilError(t, cur.Err())
	assert.DeepEqual(t, ids, []int64{f1.ID, f2.ID})
}
