package manager

import (
	"context"
	"testing"

	"vramd/pkg/types"
)

func reportedModel(env *testEnv, id string, dev types.Device, sizeMB float64, idleSeconds int64) types.ModelEntry {
	return types.ModelEntry{
		ModelID:      id,
		Device:       dev,
		VRAMUsageMB:  sizeMB,
		LastUsedUnix: env.clock.Unix() - idleSeconds,
	}
}

func TestClassify(t *testing.T) {
	env := newTestEnv(t, nil)
	cases := []struct {
		ratio float64
		want  PressureState
	}{
		{0.1, PressureNormal},
		{0.74, PressureNormal},
		{0.75, PressureWarning},
		{0.89, PressureWarning},
		{0.9, PressureCritical},
		{0.99, PressureCritical},
	}
	for _, tc := range cases {
		if got := env.m.classify(tc.ratio); got != tc.want {
			t.Fatalf("classify(%v)=%v want %v", tc.ratio, got, tc.want)
		}
	}
}

func TestCriticalEvictsLargestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mm.loaded = []types.ModelEntry{
		reportedModel(env, "m-small", types.DeviceMainPC, 1000, 10),
		reportedModel(env, "m-big", types.DeviceMainPC, 3000, 10),
	}
	env.twin.metrics = map[types.Device]types.DeviceBudget{
		types.DeviceMainPC: {TotalMB: 10000, UsedMB: 9200},
		types.DevicePC2:    {TotalMB: 8000, UsedMB: 0},
	}

	if err := env.m.monitorTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	unloads := env.mm.unloadOrder()
	if len(unloads) != 1 || unloads[0] != "m-big" {
		t.Fatalf("expected only m-big unloaded, got %v", unloads)
	}
	if env.m.contains("m-big") {
		t.Fatalf("m-big should be removed from ledger after unload")
	}
	if !env.m.contains("m-small") {
		t.Fatalf("m-small should remain loaded")
	}
}

func TestCriticalRetriesNextCandidateOnFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mm.loaded = []types.ModelEntry{
		reportedModel(env, "m-small", types.DeviceMainPC, 1000, 10),
		reportedModel(env, "m-big", types.DeviceMainPC, 3000, 10),
	}
	env.mm.failUnload["m-big"] = true
	env.twin.metrics = map[types.Device]types.DeviceBudget{
		types.DeviceMainPC: {TotalMB: 10000, UsedMB: 9200},
		types.DevicePC2:    {TotalMB: 8000, UsedMB: 0},
	}

	if err := env.m.monitorTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	unloads := env.mm.unloadOrder()
	if len(unloads) != 1 || unloads[0] != "m-small" {
		t.Fatalf("expected fallback to m-small, got %v", unloads)
	}
	if !env.m.contains("m-big") {
		t.Fatalf("failed unload must keep m-big in the ledger")
	}
}

func TestWarningEvictsLRUIdleModel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mm.loaded = []types.ModelEntry{
		reportedModel(env, "m-old", types.DeviceMainPC, 500, 3000),
		reportedModel(env, "m-older", types.DeviceMainPC, 500, 5000),
		reportedModel(env, "m-warm", types.DeviceMainPC, 500, 10),
	}
	env.twin.metrics = map[types.Device]types.DeviceBudget{
		types.DeviceMainPC: {TotalMB: 10000, UsedMB: 8000},
		types.DevicePC2:    {TotalMB: 8000, UsedMB: 0},
	}

	if err := env.m.monitorTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	unloads := env.mm.unloadOrder()
	if len(unloads) != 1 || unloads[0] != "m-older" {
		t.Fatalf("expected least-recently-used idle model m-older, got %v", unloads)
	}
}

func TestWarningWithoutIdleModelsTakesNoAction(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mm.loaded = []types.ModelEntry{
		reportedModel(env, "m-warm", types.DeviceMainPC, 500, 10),
	}
	env.twin.metrics = map[types.Device]types.DeviceBudget{
		types.DeviceMainPC: {TotalMB: 10000, UsedMB: 8000},
		types.DevicePC2:    {TotalMB: 8000, UsedMB: 0},
	}

	if err := env.m.monitorTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if unloads := env.mm.unloadOrder(); len(unloads) != 0 {
		t.Fatalf("expected no evictions, got %v", unloads)
	}
}

func TestLedgerFollowsPeerState(t *testing.T) {
	env := newTestEnv(t, nil)
	env.loadEntry("stale", types.DeviceMainPC, 500, 0)
	env.mm.loaded = []types.ModelEntry{
		reportedModel(env, "fresh", types.DevicePC2, 700, 5),
	}
	env.twin.metrics = map[types.Device]types.DeviceBudget{
		types.DeviceMainPC: {TotalMB: 10000, UsedMB: 100},
		types.DevicePC2:    {TotalMB: 8000, UsedMB: 700},
	}

	if err := env.m.monitorTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if env.m.contains("stale") {
		t.Fatalf("entry not reported by peer must be dropped")
	}
	if !env.m.contains("fresh") {
		t.Fatalf("peer-reported entry missing from ledger")
	}
	// Footprints observed during refresh feed admission estimates.
	env.m.estimates.Wait()
	if got := env.m.estimatedSizeMB("fresh"); got != 700 {
		t.Fatalf("expected estimate 700, got %v", got)
	}
}

func TestLedgerLastUsedNeverInFuture(t *testing.T) {
	env := newTestEnv(t, nil)
	env.m.applyPeerState([]types.ModelEntry{{
		ModelID:      "clock-skewed",
		Device:       types.DeviceMainPC,
		VRAMUsageMB:  100,
		LastUsedUnix: env.clock.Unix() + 3600,
	}})
	for _, e := range env.m.snapshotLedger() {
		if e.LastUsed.After(env.clock) {
			t.Fatalf("last_used %v is after now %v", e.LastUsed, env.clock)
		}
	}
}
