// Package vm implements the minigc virtual machine.
//
// This package contains:
//   - Tagged heap objects (scalars and pairs) stored in an arena
//   - A capacity-checked operand stack whose live slots are the GC roots
//   - A mark-and-sweep collector with an adaptive collection threshold
//   - Diagnostics: collection statistics, an inspector, heap snapshots
//
// A VM is single-threaded. It has no internal locking; hosts that need
// several interpreters create one VM each.
package vm
