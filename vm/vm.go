package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// DefaultStackCapacity is the number of operand stack slots.
const DefaultStackCapacity = 256

// DefaultInitialThreshold is the object count that triggers the first
// collection.
const DefaultInitialThreshold = 10

// Config holds the constructor parameters of a VM.
type Config struct {
	StackCapacity    int // operand stack slots; <= 0 means DefaultStackCapacity
	InitialThreshold int // first collection trigger; < 0 means DefaultInitialThreshold
}

// DefaultConfig returns the stock 256-slot, threshold-10 configuration.
func DefaultConfig() Config {
	return Config{
		StackCapacity:    DefaultStackCapacity,
		InitialThreshold: DefaultInitialThreshold,
	}
}

func (c Config) withDefaults() Config {
	if c.StackCapacity <= 0 {
		c.StackCapacity = DefaultStackCapacity
	}
	if c.InitialThreshold < 0 {
		c.InitialThreshold = DefaultInitialThreshold
	}
	return c
}

// Phase is the collector state.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseMarking
	PhaseSweeping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMarking:
		return "marking"
	case PhaseSweeping:
		return "sweeping"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// VM owns an operand stack and the heap reachable from it.
type VM struct {
	id  uuid.UUID
	log commonlog.Logger

	heap     *Heap
	stack    []ObjectID // live slots; cap is the stack capacity
	capacity int

	// Collector state
	numObjects int
	maxObjects int
	phase      Phase

	// Statistics
	cycles    uint64
	lastStats *CollectStats
	hooks     []func(*CollectStats)
}

// New creates a VM with an empty stack and heap.
func New(cfg Config) *VM {
	cfg = cfg.withDefaults()
	vm := &VM{
		id:         uuid.New(),
		log:        commonlog.GetLogger("minigc.vm"),
		heap:       NewHeap(),
		stack:      make([]ObjectID, 0, cfg.StackCapacity),
		capacity:   cfg.StackCapacity,
		maxObjects: cfg.InitialThreshold,
	}
	vm.log.Debugf("vm %s created (capacity %d, threshold %d)", vm.id, vm.capacity, vm.maxObjects)
	return vm
}

// NewVM creates a VM with DefaultConfig.
func NewVM() *VM {
	return New(DefaultConfig())
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

// PushInt allocates a scalar holding n and pushes it.
func (vm *VM) PushInt(n int64) ObjectID {
	vm.checkRoom()
	id := vm.allocate(Scalar(n))
	vm.push(id)
	return id
}

// PushPair pops the top two objects and pushes a pair built from them.
// The top of the stack becomes the pair's second element and the one
// beneath it the first.
func (vm *VM) PushPair() ObjectID {
	if len(vm.stack) < 2 {
		panic(vm.stackError("pop", ErrStackUnderflow))
	}
	second := vm.Pop()
	first := vm.Pop()

	id := vm.allocate(Pair(first, second))
	vm.push(id)
	return id
}

// Pop removes and returns the top of the stack.
func (vm *VM) Pop() ObjectID {
	n := len(vm.stack)
	if n == 0 {
		panic(vm.stackError("pop", ErrStackUnderflow))
	}
	id := vm.stack[n-1]
	vm.stack[n-1] = NoObject
	vm.stack = vm.stack[:n-1]
	return id
}

// allocate links a new object into the heap. Object counting happens in
// push, which owns the collection trigger.
func (vm *VM) allocate(v Value) ObjectID {
	return vm.heap.Allocate(v)
}

func (vm *VM) push(id ObjectID) {
	vm.checkRoom()
	if vm.numObjects >= vm.maxObjects {
		vm.collect(TriggerThreshold, id)
	}
	vm.numObjects++
	vm.stack = append(vm.stack, id)
}

func (vm *VM) checkRoom() {
	if len(vm.stack) >= vm.capacity {
		panic(vm.stackError("push", ErrStackOverflow))
	}
}

func (vm *VM) stackError(op string, err error) *StackError {
	return &StackError{
		Op:       op,
		Size:     len(vm.stack),
		Capacity: vm.capacity,
		Err:      err,
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// ID returns the VM's unique identifier.
func (vm *VM) ID() uuid.UUID { return vm.id }

// StackSize returns the number of live stack slots.
func (vm *VM) StackSize() int { return len(vm.stack) }

// StackCapacity returns the maximum number of stack slots.
func (vm *VM) StackCapacity() int { return vm.capacity }

// NumObjects returns the number of allocated objects not yet swept.
func (vm *VM) NumObjects() int { return vm.numObjects }

// MaxObjects returns the object count that triggers the next collection.
func (vm *VM) MaxObjects() int { return vm.maxObjects }

// Phase returns the collector state.
func (vm *VM) Phase() Phase { return vm.phase }

// HeapObjects returns the length of the object list.
func (vm *VM) HeapObjects() int { return vm.heap.Len() }

// EachObject calls fn with every allocated object, newest first, until fn
// returns false.
func (vm *VM) EachObject(fn func(id ObjectID, v Value) bool) {
	vm.heap.Each(func(id ObjectID, obj *Object) bool {
		return fn(id, obj.value)
	})
}

// Stack returns a copy of the live stack slots, bottom first.
func (vm *VM) Stack() []ObjectID {
	out := make([]ObjectID, len(vm.stack))
	copy(out, vm.stack)
	return out
}

// Peek returns the object depth slots below the top, or NoObject if the
// stack is not that deep.
func (vm *VM) Peek(depth int) ObjectID {
	i := len(vm.stack) - 1 - depth
	if depth < 0 || i < 0 {
		return NoObject
	}
	return vm.stack[i]
}

// Object returns the value held by id.
func (vm *VM) Object(id ObjectID) (Value, error) {
	obj := vm.heap.Get(id)
	if obj == nil {
		return Value{}, fmt.Errorf("vm: object #%d: %w", id, ErrUnknownObject)
	}
	return obj.value, nil
}
