package scripthost

import (
	"testing"
	"time"

	"github.com/arcaluminis/ledctl/internal/sensor"
	"github.com/arcaluminis/ledctl/internal/topology"
)

func testTopo() *topology.Topology {
	return topology.New(topology.Dim{X: 4, Y: 1, Z: 1}, topology.Order{}, map[string]int{"esc": 0})
}

func TestSolidColorScript(t *testing.T) {
	inst, err := Load("solid", Options{
		Source: `function onTick() { for (var i = 0; i < host.getLedCount(); i++) { host.setColor(i, host.rgba(255,0,0,255)); } }`,
		Topo:   testTopo(),
		Budget: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := inst.Dispatch(HandlerTick); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for i, c := range inst.Frame() {
		if c.R() != 255 {
			t.Fatalf("led %d: expected red, got %#08x", i, uint32(c))
		}
	}
}

func TestBudgetOverrunDisablesAfterThreeStrikes(t *testing.T) {
	inst, err := Load("hang", Options{
		Source: `function onTick() { while(true) {} }`,
		Topo:   testTopo(),
		Budget: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < MaxStrikes; i++ {
		if !inst.Enabled() {
			t.Fatalf("disabled too early, after %d dispatches", i)
		}
		_ = inst.Dispatch(HandlerTick)
	}
	if inst.Enabled() {
		t.Fatalf("expected instance disabled after %d strikes", MaxStrikes)
	}
}

func TestZoneLookup(t *testing.T) {
	inst, err := Load("zones", Options{
		Source: `function onTick() { var idx = host.getLedIndexForZone("esc"); if (idx !== undefined) { host.setColor(idx, host.rgba(1,2,3,255)); } }`,
		Topo:   testTopo(),
		Budget: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := inst.Dispatch(HandlerTick); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if inst.Frame()[0].R() != 1 {
		t.Fatalf("expected zone-indexed write, got %#08x", uint32(inst.Frame()[0]))
	}
}

// TestSensorSnapshotIsFrozenUntilNextSet verifies that a script reads
// whatever snapshot was installed by the most recent SetSensorSnapshot
// call, not a live sensor hub -- the mechanism that lets every layer
// dispatched within one tick see an identical sensor value.
func TestSensorSnapshotIsFrozenUntilNextSet(t *testing.T) {
	inst, err := Load("sense", Options{
		Source: `function onTick() { var s = host.sensor("mic"); host.setColorRGBA(0, Math.round(s.value), 0, 0, 255); }`,
		Topo:   testTopo(),
		Budget: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	inst.SetSensorSnapshot(map[string]sensor.Snapshot{"mic": {Value: 11, Version: 1}})
	if err := inst.Dispatch(HandlerTick); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := inst.Frame()[0].R(); got != 11 {
		t.Fatalf("expected sensor value 11 from the installed snapshot, got %d", got)
	}

	// No SetSensorSnapshot call between these two dispatches: the
	// script must see the same frozen value both times, even though a
	// live hub could have sampled a new one in between.
	if err := inst.Dispatch(HandlerTick); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := inst.Frame()[0].R(); got != 11 {
		t.Fatalf("expected snapshot to remain frozen across dispatches, got %d", got)
	}

	inst.SetSensorSnapshot(map[string]sensor.Snapshot{"mic": {Value: 42, Version: 2}})
	if err := inst.Dispatch(HandlerTick); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := inst.Frame()[0].R(); got != 42 {
		t.Fatalf("expected updated snapshot value 42, got %d", got)
	}
}

func TestAbsentHandlerIsNoop(t *testing.T) {
	inst, err := Load("empty", Options{
		Source: `var x = 1;`,
		Topo:   testTopo(),
		Budget: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := inst.Dispatch(HandlerTick); err != nil {
		t.Fatalf("expected no error dispatching absent handler, got %v", err)
	}
}
