package vm

import (
	"fmt"
	"time"
)

// SnapshotVersion is the current snapshot layout.
const SnapshotVersion uint32 = 1

// MaxRestoreSlack bounds the free slots Restore keeps between object IDs.
// Images sparser than this get their IDs renumbered densely.
const MaxRestoreSlack = 1 << 16

// Snapshot is a self-contained copy of a VM's stack and heap. Objects are
// listed in object-list order, most recent allocation first.
type Snapshot struct {
	Version       uint32         `cbor:"1,keyasint"`
	VMID          string         `cbor:"2,keyasint"`
	StackCapacity int            `cbor:"3,keyasint"`
	MaxObjects    int            `cbor:"4,keyasint"`
	Objects       []ObjectRecord `cbor:"5,keyasint"`
	Stack         []ObjectID     `cbor:"6,keyasint"`
	CreatedAt     time.Time      `cbor:"7,keyasint"`
}

// ObjectRecord is one heap object inside a Snapshot.
type ObjectRecord struct {
	ID     ObjectID `cbor:"1,keyasint"`
	Kind   Kind     `cbor:"2,keyasint"`
	Int    int64    `cbor:"3,keyasint,omitempty"`
	First  ObjectID `cbor:"4,keyasint,omitempty"`
	Second ObjectID `cbor:"5,keyasint,omitempty"`
}

// Snapshot captures the VM. Mark bits are not recorded; they are always
// clear between cycles.
func (vm *VM) Snapshot() *Snapshot {
	snap := &Snapshot{
		Version:       SnapshotVersion,
		VMID:          vm.id.String(),
		StackCapacity: vm.capacity,
		MaxObjects:    vm.maxObjects,
		Objects:       make([]ObjectRecord, 0, vm.heap.Len()),
		Stack:         vm.Stack(),
		CreatedAt:     time.Now().UTC(),
	}
	vm.heap.Each(func(id ObjectID, obj *Object) bool {
		snap.Objects = append(snap.Objects, ObjectRecord{
			ID:     id,
			Kind:   obj.value.kind,
			Int:    obj.value.n,
			First:  obj.value.first,
			Second: obj.value.second,
		})
		return true
	})
	return snap
}

// Restore builds a new VM from a snapshot. The object list order, stack,
// object count and threshold match the snapshot. cfg.StackCapacity
// overrides the recorded capacity when positive; cfg.InitialThreshold is
// ignored.
func Restore(snap *Snapshot, cfg Config) (*VM, error) {
	if snap == nil {
		return nil, fmt.Errorf("vm: restore: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("vm: restore: unsupported snapshot version %d", snap.Version)
	}

	capacity := cfg.StackCapacity
	if capacity <= 0 {
		capacity = snap.StackCapacity
	}
	if len(snap.Stack) > capacity {
		return nil, fmt.Errorf("vm: restore: stack of %d slots exceeds capacity %d: %w",
			len(snap.Stack), capacity, ErrStackOverflow)
	}
	if snap.MaxObjects < 0 {
		return nil, fmt.Errorf("vm: restore: negative threshold %d", snap.MaxObjects)
	}

	present := make(map[ObjectID]bool, len(snap.Objects))
	var maxID ObjectID
	for _, rec := range snap.Objects {
		if rec.ID == NoObject {
			return nil, fmt.Errorf("vm: restore: object with reserved id 0")
		}
		if present[rec.ID] {
			return nil, fmt.Errorf("vm: restore: duplicate object #%d", rec.ID)
		}
		if rec.Kind != KindScalar && rec.Kind != KindPair {
			return nil, fmt.Errorf("vm: restore: object #%d has invalid kind %s", rec.ID, rec.Kind)
		}
		present[rec.ID] = true
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	for _, rec := range snap.Objects {
		if rec.Kind != KindPair {
			continue
		}
		if !present[rec.First] || !present[rec.Second] {
			return nil, fmt.Errorf("vm: restore: pair #%d references missing child: %w", rec.ID, ErrUnknownObject)
		}
	}
	for i, id := range snap.Stack {
		if !present[id] {
			return nil, fmt.Errorf("vm: restore: stack slot %d holds #%d: %w", i, id, ErrUnknownObject)
		}
	}

	vm := New(Config{StackCapacity: capacity, InitialThreshold: snap.MaxObjects})

	// Renumber in allocation order, oldest first, when the recorded IDs
	// would leave the arena mostly empty.
	var renumber map[ObjectID]ObjectID
	n := len(snap.Objects)
	if int64(maxID) > int64(n)+MaxRestoreSlack {
		renumber = make(map[ObjectID]ObjectID, n)
		for i, rec := range snap.Objects {
			renumber[rec.ID] = ObjectID(n - i)
		}
		maxID = ObjectID(n)
		vm.log.Warningf("vm %s: compacting sparse image from %s", vm.id, snap.VMID)
	}
	mapID := func(id ObjectID) ObjectID {
		if renumber == nil {
			return id
		}
		return renumber[id]
	}

	h := vm.heap
	h.slots = make([]Object, maxID)
	for i, rec := range snap.Objects {
		var v Value
		if rec.Kind == KindScalar {
			v = Scalar(rec.Int)
		} else {
			v = Pair(mapID(rec.First), mapID(rec.Second))
		}
		obj := NewObject(v)
		if i+1 < n {
			obj.next = mapID(snap.Objects[i+1].ID)
		}
		h.slots[mapID(rec.ID)-1] = obj
	}
	if n > 0 {
		h.head = mapID(snap.Objects[0].ID)
	}
	if renumber == nil {
		// Highest IDs go first so the lowest free slot is reused next.
		for id := maxID; id >= 1; id-- {
			if !present[id] {
				h.free = append(h.free, id)
			}
		}
	}
	h.live = n

	for _, id := range snap.Stack {
		vm.stack = append(vm.stack, mapID(id))
	}
	vm.numObjects = n

	vm.log.Infof("vm %s restored from %s: %d objects, %d roots", vm.id, snap.VMID, vm.numObjects, len(vm.stack))
	return vm, nil
}
