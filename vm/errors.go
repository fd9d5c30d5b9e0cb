package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrStackOverflow is raised by a push onto a full operand stack.
	ErrStackOverflow = errors.New("stack overflow")
	// ErrStackUnderflow is raised by a pop from an empty operand stack.
	ErrStackUnderflow = errors.New("stack underflow")
	// ErrUnknownObject reports an ID that does not name a live heap object.
	ErrUnknownObject = errors.New("unknown object")
)

// StackError describes an unbalanced push or pop. Stack operations panic
// with a *StackError; the VM's counts and stack are left untouched.
type StackError struct {
	Op       string // "push" or "pop"
	Size     int
	Capacity int
	Err      error // ErrStackOverflow or ErrStackUnderflow
}

func (e *StackError) Error() string {
	return fmt.Sprintf("%s: %v (size %d, capacity %d)", e.Op, e.Err, e.Size, e.Capacity)
}

func (e *StackError) Unwrap() error { return e.Err }

// Guard runs fn and converts a stack overflow or underflow panic into an
// error. Any other panic is propagated.
func Guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*StackError)
			if !ok {
				panic(r)
			}
			err = se
		}
	}()
	fn()
	return nil
}
