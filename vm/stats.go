package vm

import "time"

// Trigger records why a collection ran.
type Trigger uint8

const (
	TriggerManual    Trigger = iota // explicit Collect call
	TriggerThreshold                // push found the object count at the threshold
)

func (t Trigger) String() string {
	if t == TriggerThreshold {
		return "threshold"
	}
	return "manual"
}

// CollectStats holds statistics from a single collection cycle.
type CollectStats struct {
	Cycle           uint64
	Trigger         Trigger
	Roots           int // live stack slots at the start of the cycle
	Marked          int
	Swept           int
	Survivors       int // object count after the sweep
	ThresholdBefore int
	ThresholdAfter  int
	Duration        time.Duration
	Timestamp       time.Time
}

// CycleCount returns the number of completed collection cycles.
func (vm *VM) CycleCount() uint64 {
	return vm.cycles
}

// LastStats returns statistics from the most recent cycle, or nil if no
// cycle has run yet.
func (vm *VM) LastStats() *CollectStats {
	return vm.lastStats
}

// OnCollect registers fn to run after every collection cycle. Hooks run
// with the collector idle, in registration order.
func (vm *VM) OnCollect(fn func(*CollectStats)) {
	vm.hooks = append(vm.hooks, fn)
}
