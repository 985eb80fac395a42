package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/ocupoint/sdraudio/pkg/registry"
	"github.com/ocupoint/sdraudio/pkg/telemetry"
)

func newTestEventsBroadcaster() *EventsBroadcaster {
	reg := registry.New[*Subscription]()
	metrics := telemetry.NewRegistry(prometheus.NewRegistry())
	return NewEventsBroadcaster(reg, metrics)
}

// TestEventsBroadcaster_SignalChangesShape checks §6's wire shape for
// signal_changes: a map from subscription id to its [l, m, r] triple.
func TestEventsBroadcaster_SignalChangesShape(t *testing.T) {
	e := newTestEventsBroadcaster()
	e.RecordSignalChange("sub-1", 100, 200, 150)

	digest := e.snapshot()
	assert.Equal(t, signalChangeTriple{100, 150, 200}, digest.SignalChanges["sub-1"])
}

// TestEventsBroadcaster_DisconnectSentinel checks the [-1,-1,-1]
// sentinel is reported for a disconnected subscription's id.
func TestEventsBroadcaster_DisconnectSentinel(t *testing.T) {
	e := newTestEventsBroadcaster()
	e.RecordDisconnect("sub-1")

	digest := e.snapshot()
	assert.Equal(t, disconnectTriple, digest.SignalChanges["sub-1"])
}

// TestEventsBroadcaster_DigestDrainsBetweenTicks checks that a digest
// only reports changes accumulated since the previous snapshot, not a
// running total.
func TestEventsBroadcaster_DigestDrainsBetweenTicks(t *testing.T) {
	e := newTestEventsBroadcaster()
	e.RecordSignalChange("sub-1", 0, 10, 5)

	first := e.snapshot()
	assert.Len(t, first.SignalChanges, 1)

	second := e.snapshot()
	assert.Len(t, second.SignalChanges, 0)
}
