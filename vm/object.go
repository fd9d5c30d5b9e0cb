package vm

import "fmt"

// ObjectID addresses an object in a VM's heap arena. IDs are stable for
// the lifetime of the object; a swept slot may be handed out again.
type ObjectID uint32

// NoObject is the empty reference. Arena IDs start at 1.
const NoObject ObjectID = 0

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindFree   Kind = iota // arena slot not holding an object
	KindScalar             // integer leaf
	KindPair               // two child references
)

func (k Kind) String() string {
	switch k {
	case KindFree:
		return "Free"
	case KindScalar:
		return "Scalar"
	case KindPair:
		return "Pair"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is the tagged payload of a heap object.
type Value struct {
	kind   Kind
	n      int64
	first  ObjectID
	second ObjectID
}

// Scalar returns an integer leaf value.
func Scalar(n int64) Value {
	return Value{kind: KindScalar, n: n}
}

// Pair returns a composite value referencing two other objects.
func Pair(first, second ObjectID) Value {
	return Value{kind: KindPair, first: first, second: second}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsScalar() bool { return v.kind == KindScalar }
func (v Value) IsPair() bool { return v.kind == KindPair }
func (v Value) Int() int64 { return v.n }
func (v Value) First() ObjectID { return v.first }
func (v Value) Second() ObjectID { return v.second }

// Children returns the child references of a pair, or nil for a scalar.
func (v Value) Children() []ObjectID {
	if v.kind != KindPair {
		return nil
	}
	return []ObjectID{v.first, v.second}
}

func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return fmt.Sprintf("%d", v.n)
	case KindPair:
		return fmt.Sprintf("pair(#%d, #%d)", v.first, v.second)
	}
	return v.kind.String()
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Object is one heap node. The next link threads every allocated object
// into the collector's list and is unrelated to the pair children.
type Object struct {
	value  Value
	marked bool
	next   ObjectID
}

// NewObject creates an unmarked, unlinked object holding v.
func NewObject(v Value) Object {
	return Object{value: v, next: NoObject}
}

// Value returns the object's payload.
func (o *Object) Value() Value { return o.value }

// Marked reports whether the object was reached by the current mark phase.
func (o *Object) Marked() bool { return o.marked }

// Next returns the previously allocated object in the collector's list.
func (o *Object) Next() ObjectID { return o.next }
