// Package manager implements the VRAM resource manager: it tracks loaded
// models and per-device memory pressure across both machines, gates load
// requests through admission control, and runs the background loops that keep
// usage below the configured thresholds. It is structured into small files by
// concern:
//
//   - manager.go: core Manager type, constructor, lifecycle.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (PressureState, ledgerEntry) and peer interfaces.
//   - errors.go: error types and helpers (IsInvalidArgument, IsModelNotFound).
//   - ledger.go: lock-guarded loaded-model table and peer-state reconciliation.
//   - stats.go: per-device budget refresh with local fallback.
//   - admission.go: CanLoad gate with learned size estimates and the
//     digital-twin simulation consult for large allocations.
//   - monitor.go: pressure classification and critical/warning eviction.
//   - idle.go: LRU-timeout sweep of unused models.
//   - predictor.go: usage history and queue/pattern driven preloading.
//   - defrag.go: fragmentation measurement, unload/reload cycles, batch tuning.
//   - loops.go: the periodic background loops and shared cancellation.
//   - status.go: the RPC-facing operations (track usage, status, config, health).
//   - events.go / eventpub_memory.go: lifecycle event publishing.
//   - persist.go: best-effort usage metadata snapshot across restarts.
//   - metrics.go: prometheus gauges and counters for the above.
//
// All mutable state lives on the Manager behind one mutex. Peer RPCs are
// always issued outside the lock; the model manager peer remains the single
// writer of truth for actual GPU allocation, and the ledger is corrected from
// its reports on every monitor tick.
package manager
