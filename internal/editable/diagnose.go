package editable

import (
	"errors"
	"fmt"

	"github.com/san-kum/odegrad/internal/tensor"
)

// ParamSlot is one entry of an object's declared tensor inventory: a name
// for reporting plus accessors so the diagnostics can substitute and
// restore the tensor without reflection.
type ParamSlot struct {
	Name string
	Get  func() *tensor.Tensor
	Set  func(*tensor.Tensor)
}

// Manifested is implemented by objects that declare their full tensor
// inventory for conformance checking. The manifest should cover every
// tensor any operation could read, not just the ones GetParams reports.
type Manifested interface {
	ParamManifest() []ParamSlot
}

// MissingParams substitutes a gradient-tracked clone into every manifest
// slot, invokes run (which must execute the operation and return its
// output), and reports the slots that influence the output but are absent
// from GetParams(op). A malformed GetParams produces silently wrong
// gradients on the hot path, so this is the conformance check for protocol
// implementations. Original tensors are restored before returning.
func MissingParams(obj Editable, op string, run func() (*tensor.Tensor, error)) ([]string, error) {
	m, ok := obj.(Manifested)
	if !ok {
		return nil, errors.New("editable: object does not declare a parameter manifest")
	}
	slots := m.ParamManifest()

	orig := make([]*tensor.Tensor, len(slots))
	clones := make([]*tensor.Tensor, len(slots))
	for i, s := range slots {
		orig[i] = s.Get()
		clones[i] = orig[i].Detach().Clone().Leaf()
		s.Set(clones[i])
	}
	defer func() {
		for i, s := range slots {
			s.Set(orig[i])
		}
	}()
	Forget(obj)
	defer Forget(obj)

	out, err := run()
	if err != nil {
		return nil, fmt.Errorf("editable: diagnostic run of %q: %w", op, err)
	}

	declared := map[*tensor.Tensor]bool{}
	for _, p := range obj.GetParams(op) {
		declared[p] = true
	}

	var missing []string
	used := tensor.Reaches(out, clones)
	for i, u := range used {
		if u && !declared[clones[i]] {
			missing = append(missing, slots[i].Name)
		}
	}
	return missing, nil
}

// FindParam returns the manifest names whose tensors match p by shape and
// value, for locating where a stray parameter lives inside an object.
func FindParam(obj Manifested, p *tensor.Tensor, rtol, atol float64) []string {
	var names []string
	for _, s := range obj.ParamManifest() {
		if tensor.AllClose(s.Get(), p, rtol, atol) {
			names = append(names, s.Name)
		}
	}
	return names
}
