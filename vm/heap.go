package vm

// ---------------------------------------------------------------------------
// Heap: arena of objects threaded into the collector's object list
// ---------------------------------------------------------------------------

// Heap owns every allocated object. Objects live in an arena addressed by
// ObjectID; the intrusive next links form the object list the sweep phase
// walks, newest allocation first.
type Heap struct {
	slots []Object   // slots[id-1]
	free  []ObjectID // recycled slots, reused LIFO
	head  ObjectID   // most recent allocation
	live  int

	work []ObjectID // mark work list, reused across cycles
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Allocate stores v in a fresh object and prepends it to the object list.
func (h *Heap) Allocate(v Value) ObjectID {
	var id ObjectID
	if n := len(h.free); n > 0 {
		id = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.slots = append(h.slots, Object{})
		id = ObjectID(len(h.slots))
	}

	obj := NewObject(v)
	obj.next = h.head
	h.slots[id-1] = obj
	h.head = id
	h.live++
	return id
}

// Get returns the object for id, or nil if id does not name a live object.
func (h *Heap) Get(id ObjectID) *Object {
	if id == NoObject || int(id) > len(h.slots) {
		return nil
	}
	obj := &h.slots[id-1]
	if obj.value.kind == KindFree {
		return nil
	}
	return obj
}

// Len returns the number of objects in the list.
func (h *Heap) Len() int { return h.live }

// Head returns the most recently allocated object still in the list.
func (h *Heap) Head() ObjectID { return h.head }

// Each calls fn for every object in list order until fn returns false.
func (h *Heap) Each(fn func(id ObjectID, obj *Object) bool) {
	for id := h.head; id != NoObject; {
		obj := &h.slots[id-1]
		next := obj.next
		if !fn(id, obj) {
			return
		}
		id = next
	}
}

// Mark flags id and everything reachable from it through pair children.
// Objects that are already marked are skipped, so shared children and
// cycles are visited once. The traversal uses an explicit work list and
// is not limited by the goroutine stack. Returns the number of objects
// newly marked.
func (h *Heap) Mark(id ObjectID) int {
	if id == NoObject {
		return 0
	}

	marked := 0
	work := append(h.work[:0], id)
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		obj := h.Get(cur)
		if obj == nil || obj.marked {
			continue
		}
		obj.marked = true
		marked++

		if obj.value.kind == KindPair {
			// Second is pushed first so the head is visited first.
			work = append(work, obj.value.second, obj.value.first)
		}
	}
	h.work = work[:0]
	return marked
}

// Sweep walks the object list once. Unmarked objects are unlinked and their
// slots recycled; survivors have their mark cleared for the next cycle.
func (h *Heap) Sweep() (swept, survivors int) {
	prev := NoObject
	for cur := h.head; cur != NoObject; {
		obj := &h.slots[cur-1]
		next := obj.next

		if !obj.marked {
			if prev == NoObject {
				h.head = next
			} else {
				h.slots[prev-1].next = next
			}
			h.release(cur)
			swept++
		} else {
			obj.marked = false
			prev = cur
			survivors++
		}
		cur = next
	}
	return swept, survivors
}

// release returns a slot to the free list. Callers unlink it first.
func (h *Heap) release(id ObjectID) {
	h.slots[id-1] = Object{}
	h.free = append(h.free, id)
	h.live--
}
