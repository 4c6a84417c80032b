package telemetry

import "github.com/rs/xid"

// NewRunID mints a short globally-sortable identifier for one recorder
// invocation, shown in the dashboard's status panel so two concurrent
// runs writing into the same directory (e.g. during a restart) can be
// told apart at a glance.
//
// Grounded on runZeroInc-sockstats's exporter_example2, which labels
// each tracked connection with xid.New().String() for the same reason:
// a cheap, sortable, dependency-light id generator already in the pack.
func NewRunID() string {
	return xid.New().String()
}
