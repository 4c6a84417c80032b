package ingest

import (
	"log"

	"github.com/probelab/tcpwatch/internal/events"
	"github.com/probelab/tcpwatch/internal/storage"
)

// BufferSize is the per-series in-memory point buffer capacity from
// spec.md §4.4: once full, a series is flushed as one batched insert
// and the buffer is cleared.
const BufferSize = 10_000

// seriesBuffer tracks one time series' pending points plus whether it
// has ever received a point across the whole run, so Demux can delete
// series that end up empty at shutdown (spec.md §3 Lifecycle).
type seriesBuffer struct {
	id       int64
	typ      storage.ValueType
	points   []storage.DataPoint
	received bool
}

// Demux is the single writer task described in spec.md §4.4/§5: it
// receives decoded events in arrival order from a shared channel,
// looks up (or lazily creates) each event's flow and per-field time
// series, and buffers data points per series before flushing them as
// batched inserts.
//
// Grounded on original_source/tcbee/tcbee-process/src/flow_tracker.rs's
// FlowTracker: one struct owning the storage handle and a per-flow map
// of per-series buffers, run from a single blocking task so storage
// access is never shared across goroutines.
type Demux struct {
	store *storage.Store

	flowIDs  map[storage.FlowKey]int64
	inited   map[int64]map[events.Kind]bool
	series   map[int64]map[string]*seriesBuffer
}

// NewDemux creates a demultiplexer writing into store.
func NewDemux(store *storage.Store) *Demux {
	return &Demux{
		store:   store,
		flowIDs: make(map[storage.FlowKey]int64),
		inited:  make(map[int64]map[events.Kind]bool),
		series:  make(map[int64]map[string]*seriesBuffer),
	}
}

// Run consumes in until it is closed, then flushes every non-empty
// buffer and deletes every series that never received a point, exactly
// matching spec.md §5's "demultiplexer writer exits when all channel
// senders are dropped ... flushes all per-series buffers ... then
// returns."
func (d *Demux) Run(in <-chan Envelope) error {
	for env := range in {
		if err := d.handle(env); err != nil {
			// Best-effort during ingest: log and keep the pipeline
			// running (spec.md §7).
			log.Printf("ingest: dropping event from %s: %v", env.Source, err)
		}
	}
	return d.shutdown()
}

func (d *Demux) handle(env Envelope) error {
	key := env.Event.FlowKey()
	flowID, ok := d.flowIDs[key]
	if !ok {
		flow, err := d.store.CreateFlow(key)
		if err != nil {
			return err
		}
		flowID = flow.ID
		d.flowIDs[key] = flowID
		d.inited[flowID] = make(map[events.Kind]bool)
		d.series[flowID] = make(map[string]*seriesBuffer)
	}

	if !d.inited[flowID][env.Kind] {
		if err := d.initSeries(flowID, env.Kind, env.Event); err != nil {
			return err
		}
		d.inited[flowID][env.Kind] = true
	}

	timestamp := env.Event.Timestamp() / 1e9 // kernel ns since boot -> seconds
	flowSeries := d.series[flowID]
	for i := 0; i <= env.Event.MaxIndex(); i++ {
		val, present := env.Event.Field(i)
		if !present {
			continue
		}
		buf := flowSeries[env.Event.FieldName(i)]
		d.append(buf, storage.DataPoint{Timestamp: timestamp, Value: val})
	}
	return nil
}

// initSeries eagerly creates one time series per declared field of
// this event kind, the first time a flow sees that kind, regardless of
// whether this particular record populates every field.
func (d *Demux) initSeries(flowID int64, kind events.Kind, sample events.FieldIndexer) error {
	for i := 0; i <= sample.MaxIndex(); i++ {
		name := sample.FieldName(i)
		if _, exists := d.series[flowID][name]; exists {
			continue
		}
		typ := sample.DefaultField(i).Type
		ts, err := d.store.CreateTimeSeries(flowID, name, typ)
		if err != nil {
			return err
		}
		d.series[flowID][name] = &seriesBuffer{id: ts.ID, typ: ts.Type}
	}
	return nil
}

// append buffers a point and flushes when the buffer is full. Flush
// failures (a type mismatch that shouldn't occur given initSeries, or
// a duplicate (series, timestamp) pair) are logged and the batch is
// dropped; the pipeline keeps running.
func (d *Demux) append(buf *seriesBuffer, p storage.DataPoint) {
	buf.received = true
	buf.points = append(buf.points, p)
	if len(buf.points) < BufferSize {
		return
	}
	if err := d.store.InsertMultiplePoints(buf.id, buf.points); err != nil {
		log.Printf("ingest: flush series %d: %v", buf.id, err)
	}
	buf.points = buf.points[:0]
}

// shutdown flushes every non-empty buffer and deletes every series
// that never received a single point over the run.
func (d *Demux) shutdown() error {
	for _, flowSeries := range d.series {
		for _, buf := range flowSeries {
			if len(buf.points) > 0 {
				if err := d.store.InsertMultiplePoints(buf.id, buf.points); err != nil {
					log.Printf("ingest: final flush series %d: %v", buf.id, err)
				}
				buf.points = nil
			}
			if !buf.received {
				if err := d.store.DeleteTimeSeries(buf.id); err != nil {
					log.Printf("ingest: delete empty series %d: %v", buf.id, err)
				}
			}
		}
	}
	return nil
}
