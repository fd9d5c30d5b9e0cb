package vm

import (
	"fmt"
	"strings"
)

// Inspector provides debugging inspection of heap objects. It walks pairs
// down to a bounded depth and reports each object's payload and mark state.
type Inspector struct {
	vm *VM
}

// InspectionResult contains structured information about an inspected object.
type InspectionResult struct {
	ID     ObjectID
	Type   string // Scalar, Pair, or Unknown
	Value  string // String representation of the object
	Marked bool
	Fields []FieldInfo // For pairs: first and second
}

// FieldInfo names one child of a pair.
type FieldInfo struct {
	Name  string
	Value *InspectionResult
}

// DefaultMaxDepth is the default recursion depth for inspection.
const DefaultMaxDepth = 3

// MaxFormatLength caps the output of FormatObject. Shared children are
// printed once per path, so a small DAG can expand into a very long string.
const MaxFormatLength = 4096

// NewInspector creates a new Inspector attached to the given VM.
func NewInspector(vm *VM) *Inspector {
	return &Inspector{vm: vm}
}

// Inspect inspects an object with the default maximum depth.
func (i *Inspector) Inspect(id ObjectID) *InspectionResult {
	return i.InspectDepth(id, DefaultMaxDepth)
}

// InspectDepth inspects an object with a specified maximum recursion depth.
// When depth reaches 0, pairs are shown as summaries only.
func (i *Inspector) InspectDepth(id ObjectID, depth int) *InspectionResult {
	result := &InspectionResult{ID: id}

	obj := i.vm.heap.Get(id)
	if obj == nil {
		result.Type = "Unknown"
		result.Value = fmt.Sprintf("<unknown #%d>", id)
		return result
	}

	v := obj.value
	result.Type = v.kind.String()
	result.Marked = obj.marked

	switch v.kind {
	case KindScalar:
		result.Value = fmt.Sprintf("%d", v.n)
	case KindPair:
		result.Value = fmt.Sprintf("(#%d . #%d)", v.first, v.second)
		if depth <= 0 {
			return result
		}
		result.Fields = []FieldInfo{
			{Name: "first", Value: i.InspectDepth(v.first, depth-1)},
			{Name: "second", Value: i.InspectDepth(v.second, depth-1)},
		}
	}
	return result
}

// InspectStack inspects every live stack slot, bottom first.
func (i *Inspector) InspectStack(depth int) []*InspectionResult {
	results := make([]*InspectionResult, 0, len(i.vm.stack))
	for _, id := range i.vm.stack {
		results = append(results, i.InspectDepth(id, depth))
	}
	return results
}

// String returns a one-level representation of the inspection result.
func (r *InspectionResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s: %s\n", r.ID, r.Type, r.Value)
	for _, f := range r.Fields {
		sb.WriteString("  ")
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		if f.Value != nil {
			sb.WriteString(f.Value.Value)
		} else {
			sb.WriteString("<nil>")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// PrettyPrint returns a detailed multi-line representation with full nesting.
func (r *InspectionResult) PrettyPrint() string {
	var sb strings.Builder
	r.prettyPrint(&sb, 0)
	return sb.String()
}

func (r *InspectionResult) prettyPrint(sb *strings.Builder, indent int) {
	prefix := strings.Repeat("  ", indent)
	fmt.Fprintf(sb, "%s#%d %s: %s\n", prefix, r.ID, r.Type, r.Value)
	for _, f := range r.Fields {
		fmt.Fprintf(sb, "%s  %s:\n", prefix, f.Name)
		if f.Value != nil {
			f.Value.prettyPrint(sb, indent+2)
		}
	}
}

// FormatObject renders id as nested dotted pairs, e.g. "(10 . (20 . 30))".
// The walk is iterative, so arbitrarily deep nesting is safe; output longer
// than MaxFormatLength is truncated with "...".
func FormatObject(vm *VM, id ObjectID) string {
	type item struct {
		id   ObjectID
		text string
	}

	var sb strings.Builder
	work := []item{{id: id}}
	for len(work) > 0 {
		if sb.Len() > MaxFormatLength {
			sb.WriteString("...")
			break
		}
		it := work[len(work)-1]
		work = work[:len(work)-1]

		if it.text != "" {
			sb.WriteString(it.text)
			continue
		}
		obj := vm.heap.Get(it.id)
		switch {
		case obj == nil:
			fmt.Fprintf(&sb, "<unknown #%d>", it.id)
		case obj.value.kind == KindScalar:
			fmt.Fprintf(&sb, "%d", obj.value.n)
		default:
			sb.WriteString("(")
			work = append(work,
				item{text: ")"},
				item{id: obj.value.second},
				item{text: " . "},
				item{id: obj.value.first},
			)
		}
	}
	return sb.String()
}
