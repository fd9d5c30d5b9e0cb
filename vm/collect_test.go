package vm

import (
	"math/rand"
	"testing"
)

// ---------------------------------------------------------------------------
// Threshold adaptation
// ---------------------------------------------------------------------------

func TestThresholdTriggersCollection(t *testing.T) {
	vm := NewVM()

	for i := 0; i < 10; i++ {
		vm.PushInt(int64(i))
	}
	if vm.CycleCount() != 0 {
		t.Fatalf("collected after %d pushes, want none before the threshold", vm.StackSize())
	}

	vm.PushInt(10)
	if vm.CycleCount() != 1 {
		t.Fatalf("CycleCount = %d after 11th push, want 1", vm.CycleCount())
	}
	stats := vm.LastStats()
	if stats.Trigger != TriggerThreshold {
		t.Errorf("Trigger = %s, want threshold", stats.Trigger)
	}
	if stats.Survivors != 10 || stats.ThresholdBefore != 10 || stats.ThresholdAfter != 20 {
		t.Errorf("stats = %+v, want 10 survivors, threshold 10 -> 20", stats)
	}
	if vm.MaxObjects() != 20 {
		t.Errorf("MaxObjects = %d, want 20", vm.MaxObjects())
	}

	// The next cycle waits until the count reaches twice the survivors.
	for i := 11; i < 20; i++ {
		vm.PushInt(int64(i))
	}
	if vm.CycleCount() != 1 {
		t.Errorf("CycleCount = %d with %d objects, want 1", vm.CycleCount(), vm.NumObjects())
	}
	vm.PushInt(20)
	if vm.CycleCount() != 2 {
		t.Errorf("CycleCount = %d after reaching 20 objects, want 2", vm.CycleCount())
	}
	if vm.MaxObjects() != 40 {
		t.Errorf("MaxObjects = %d, want 40", vm.MaxObjects())
	}
}

func TestThresholdFollowsSurvivors(t *testing.T) {
	vm := NewVM()
	for i := 0; i < 5; i++ {
		vm.PushInt(int64(i))
	}
	vm.Pop()
	vm.Pop()

	vm.Collect()

	if vm.MaxObjects() != 6 {
		t.Errorf("MaxObjects = %d, want 2 * 3 survivors", vm.MaxObjects())
	}
}

func TestDrainedHeapCollectsOnNextPush(t *testing.T) {
	vm := NewVM()
	vm.PushInt(1)
	vm.PushInt(2)
	vm.Pop()
	vm.Pop()

	vm.Collect()
	if vm.NumObjects() != 0 || vm.MaxObjects() != 0 {
		t.Fatalf("num/max = %d/%d, want 0/0", vm.NumObjects(), vm.MaxObjects())
	}

	cycles := vm.CycleCount()
	vm.PushInt(3)
	if vm.CycleCount() != cycles+1 {
		t.Errorf("push onto drained heap ran %d cycles, want 1", vm.CycleCount()-cycles)
	}
	if vm.NumObjects() != 1 || vm.HeapObjects() != 1 {
		t.Errorf("num/heap = %d/%d, want 1/1", vm.NumObjects(), vm.HeapObjects())
	}
}

func TestZeroThresholdKeepsCollecting(t *testing.T) {
	vm := New(Config{StackCapacity: 16, InitialThreshold: 0})

	vm.PushInt(1) // 0 >= 0: collect, threshold stays 0
	vm.PushInt(2) // 1 >= 0: collect, threshold 2
	vm.PushInt(3) // 2 >= 2: collect, threshold 4

	if vm.CycleCount() != 3 {
		t.Errorf("CycleCount = %d, want 3", vm.CycleCount())
	}
	if vm.MaxObjects() != 4 {
		t.Errorf("MaxObjects = %d, want 4", vm.MaxObjects())
	}
	if vm.NumObjects() != 3 {
		t.Errorf("NumObjects = %d, want 3", vm.NumObjects())
	}
}

// ---------------------------------------------------------------------------
// Reachability
// ---------------------------------------------------------------------------

func TestPushedObjectSurvivesTriggeredCollection(t *testing.T) {
	vm := New(Config{StackCapacity: 8, InitialThreshold: 3})
	a := vm.PushInt(1)
	b := vm.PushInt(2)
	c := vm.PushInt(3)

	// The pair's children are off the stack and the pair itself is not
	// stored yet when the threshold cycle runs.
	p := vm.PushPair()

	if vm.CycleCount() != 1 {
		t.Fatalf("CycleCount = %d, want 1", vm.CycleCount())
	}
	if vm.LastStats().Swept != 0 {
		t.Errorf("Swept = %d, want 0", vm.LastStats().Swept)
	}
	for _, id := range []ObjectID{a, b, c, p} {
		if _, err := vm.Object(id); err != nil {
			t.Errorf("#%d lost: %v", id, err)
		}
	}
	if vm.NumObjects() != 4 || vm.HeapObjects() != 4 {
		t.Errorf("num/heap = %d/%d, want 4/4", vm.NumObjects(), vm.HeapObjects())
	}
}

func TestTriggeredCollectionSweepsGarbage(t *testing.T) {
	vm := New(Config{StackCapacity: 8, InitialThreshold: 4})
	vm.PushInt(1)
	vm.PushInt(2)
	vm.PushInt(3)
	vm.Pop()
	vm.Pop()
	vm.PushInt(4)
	vm.PushInt(5) // 4 >= 4: two popped scalars are garbage

	stats := vm.LastStats()
	if stats == nil {
		t.Fatal("no cycle ran")
	}
	if stats.Swept != 2 || stats.Survivors != 2 {
		t.Errorf("swept/survivors = %d/%d, want 2/2", stats.Swept, stats.Survivors)
	}
	if vm.NumObjects() != 3 || vm.HeapObjects() != 3 {
		t.Errorf("num/heap = %d/%d, want 3/3", vm.NumObjects(), vm.HeapObjects())
	}
}

func TestNestedChildSurvives(t *testing.T) {
	vm := NewVM()
	vm.PushInt(1)
	vm.PushInt(2)
	p := vm.PushPair()
	inner, _ := vm.Object(p)

	vm.PushInt(3)
	vm.PushPair()
	vm.Collect()

	if vm.NumObjects() != 5 {
		t.Errorf("NumObjects = %d, want 5", vm.NumObjects())
	}
	if _, err := vm.Object(inner.First()); err != nil {
		t.Errorf("nested child lost: %v", err)
	}
}

func TestCollectStats(t *testing.T) {
	vm := NewVM()
	vm.PushInt(1)
	vm.PushInt(2)
	vm.PushPair()
	vm.PushInt(3)
	vm.Pop()

	var hooked []*CollectStats
	vm.OnCollect(func(s *CollectStats) { hooked = append(hooked, s) })

	stats := vm.Collect()

	if stats.Cycle != 1 || stats.Trigger != TriggerManual {
		t.Errorf("cycle/trigger = %d/%s, want 1/manual", stats.Cycle, stats.Trigger)
	}
	if stats.Roots != 1 || stats.Marked != 3 || stats.Swept != 1 || stats.Survivors != 3 {
		t.Errorf("stats = %+v, want 1 root, 3 marked, 1 swept, 3 survivors", stats)
	}
	if stats.ThresholdAfter != 6 {
		t.Errorf("ThresholdAfter = %d, want 6", stats.ThresholdAfter)
	}
	if stats.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if len(hooked) != 1 || hooked[0] != stats {
		t.Errorf("hook saw %d cycles", len(hooked))
	}
	if vm.LastStats() != stats {
		t.Error("LastStats does not return the latest cycle")
	}
	if vm.Phase() != PhaseIdle {
		t.Errorf("Phase = %s after cycle, want idle", vm.Phase())
	}
}

func TestMarksClearedAfterCollect(t *testing.T) {
	vm := NewVM()
	vm.PushInt(1)
	vm.PushInt(2)
	vm.PushPair()
	vm.Collect()

	vm.heap.Each(func(id ObjectID, obj *Object) bool {
		if obj.Marked() {
			t.Errorf("#%d still marked after sweep", id)
		}
		return true
	})
}

func TestDeeplyNestedPairs(t *testing.T) {
	const depth = 50000

	vm := New(Config{StackCapacity: 4, InitialThreshold: 10})
	vm.PushInt(0)
	for i := 1; i <= depth; i++ {
		vm.PushInt(int64(i))
		vm.PushPair()
	}
	vm.Collect()

	if vm.StackSize() != 1 {
		t.Errorf("StackSize = %d, want 1", vm.StackSize())
	}
	if vm.NumObjects() != 2*depth+1 {
		t.Errorf("NumObjects = %d, want %d", vm.NumObjects(), 2*depth+1)
	}

	vm.Pop()
	vm.Collect()
	if vm.NumObjects() != 0 || vm.HeapObjects() != 0 {
		t.Errorf("num/heap = %d/%d after dropping the root, want 0/0", vm.NumObjects(), vm.HeapObjects())
	}
}

// reachable walks the VM's stack independently of the collector.
func reachable(t *testing.T, vm *VM) map[ObjectID]bool {
	t.Helper()
	seen := make(map[ObjectID]bool)
	work := vm.Stack()
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[id] {
			continue
		}
		v, err := vm.Object(id)
		if err != nil {
			t.Fatalf("reachable object #%d missing: %v", id, err)
		}
		seen[id] = true
		work = append(work, v.Children()...)
	}
	return seen
}

func TestRandomOperationsPreserveReachability(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	vm := New(Config{StackCapacity: 32, InitialThreshold: 4})

	for step := 0; step < 5000; step++ {
		switch op := rng.Intn(10); {
		case op < 5 && vm.StackSize() < vm.StackCapacity():
			vm.PushInt(rng.Int63n(1000))
		case op < 7 && vm.StackSize() >= 2:
			vm.PushPair()
		case op < 9 && vm.StackSize() >= 1:
			vm.Pop()
		default:
			vm.Collect()
			live := reachable(t, vm)
			if vm.HeapObjects() != len(live) {
				t.Fatalf("step %d: heap holds %d objects, %d reachable", step, vm.HeapObjects(), len(live))
			}
		}

		// Every allocation is counted as soon as its push completes.
		if vm.NumObjects() != vm.HeapObjects() {
			t.Fatalf("step %d: NumObjects = %d, list length = %d", step, vm.NumObjects(), vm.HeapObjects())
		}
		reachable(t, vm)
	}
}
