package vm

import "time"

// ---------------------------------------------------------------------------
// Mark and sweep
// ---------------------------------------------------------------------------

// Collect runs a full collection cycle and returns its statistics.
func (vm *VM) Collect() *CollectStats {
	return vm.collect(TriggerManual, NoObject)
}

// collect marks from every live stack slot, sweeps the object list and
// sets the next threshold to twice the surviving count. pending is an
// object allocated but not yet stored on the stack; it is treated as a
// root so the push that triggered the cycle cannot lose it.
func (vm *VM) collect(trigger Trigger, pending ObjectID) *CollectStats {
	if vm.phase != PhaseIdle {
		panic("vm: collection already in progress")
	}

	start := time.Now()
	stats := &CollectStats{
		Cycle:           vm.cycles + 1,
		Trigger:         trigger,
		Roots:           len(vm.stack),
		ThresholdBefore: vm.maxObjects,
		Timestamp:       start,
	}

	vm.phase = PhaseMarking
	for _, id := range vm.stack {
		stats.Marked += vm.heap.Mark(id)
	}
	if pending != NoObject {
		stats.Marked += vm.heap.Mark(pending)
	}

	vm.phase = PhaseSweeping
	swept, _ := vm.heap.Sweep()
	vm.numObjects -= swept

	vm.maxObjects = vm.numObjects * 2
	vm.phase = PhaseIdle

	stats.Swept = swept
	stats.Survivors = vm.numObjects
	stats.ThresholdAfter = vm.maxObjects
	stats.Duration = time.Since(start)

	vm.cycles++
	vm.lastStats = stats

	vm.log.Debugf("vm %s: gc #%d (%s): roots=%d marked=%d swept=%d live=%d next=%d in %s",
		vm.id, stats.Cycle, trigger, stats.Roots, stats.Marked, stats.Swept,
		stats.Survivors, stats.ThresholdAfter, stats.Duration)

	for _, fn := range vm.hooks {
		fn(stats)
	}
	return stats
}
