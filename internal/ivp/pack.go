package ivp

import (
	"fmt"

	"github.com/san-kum/odegrad/internal/tensor"
)

// Packer flattens a fixed-order list of tensors into a single 1-D tensor
// and back, so all engine math runs on one state tensor even when the
// user-facing state is list-valued.
type Packer struct {
	shapes [][]int
	sizes  []int
	total  int
}

func NewPacker(template []*tensor.Tensor) *Packer {
	p := &Packer{}
	for _, t := range template {
		p.shapes = append(p.shapes, t.Shape())
		p.sizes = append(p.sizes, t.Size())
		p.total += t.Size()
	}
	return p
}

func (p *Packer) Total() int { return p.total }

// Flatten concatenates the list into one 1-D tensor. The list must match
// the template's count and element shapes.
func (p *Packer) Flatten(list []*tensor.Tensor) (*tensor.Tensor, error) {
	if len(list) != len(p.shapes) {
		return nil, fmt.Errorf("%w: expected %d state tensors, got %d",
			ErrConfiguration, len(p.shapes), len(list))
	}
	parts := make([]*tensor.Tensor, len(list))
	for i, t := range list {
		if t.Size() != p.sizes[i] {
			return nil, fmt.Errorf("%w: state tensor %d has size %d, expected %d",
				ErrConfiguration, i, t.Size(), p.sizes[i])
		}
		parts[i] = tensor.Reshape(t, p.sizes[i])
	}
	return tensor.Concat(parts...), nil
}

// Split is the order-preserving inverse of Flatten.
func (p *Packer) Split(flat *tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(p.shapes))
	off := 0
	for i := range p.shapes {
		out[i] = tensor.Reshape(tensor.Narrow(flat, off, p.sizes[i]), p.shapes[i]...)
		off += p.sizes[i]
	}
	return out
}

// Separator partitions an ordered parameter list into its tensor and
// non-tensor entries. Only tensors can carry gradients; the separator
// remembers which positions were non-tensor so both the original
// interleaving and a gradient list of matching arity can be rebuilt.
type Separator struct {
	all       []any
	tensorIdx []int
	tensors   []*tensor.Tensor
}

func NewSeparator(params []any) *Separator {
	s := &Separator{all: append([]any(nil), params...)}
	for i, p := range params {
		if t, ok := p.(*tensor.Tensor); ok {
			s.tensorIdx = append(s.tensorIdx, i)
			s.tensors = append(s.tensors, t)
		}
	}
	return s
}

func (s *Separator) Len() int { return len(s.all) }

// Tensors returns the tensor subset in original order.
func (s *Separator) Tensors() []*tensor.Tensor {
	return append([]*tensor.Tensor(nil), s.tensors...)
}

// Reconstruct rebuilds the full parameter list with the given tensors at
// the tensor positions and the captured values everywhere else.
func (s *Separator) Reconstruct(tensors []*tensor.Tensor) ([]any, error) {
	if len(tensors) != len(s.tensorIdx) {
		return nil, fmt.Errorf("%w: expected %d tensor params, got %d",
			ErrConfiguration, len(s.tensorIdx), len(tensors))
	}
	out := append([]any(nil), s.all...)
	for j, i := range s.tensorIdx {
		out[i] = tensors[j]
	}
	return out, nil
}

// ReconstructGrads places the given gradients at the tensor positions and
// explicit zero scalars at every non-tensor position, so callers never
// special-case missing gradients.
func (s *Separator) ReconstructGrads(grads []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(s.all))
	for i := range out {
		out[i] = tensor.Scalar(0)
	}
	for j, i := range s.tensorIdx {
		if j < len(grads) && grads[j] != nil {
			out[i] = grads[j]
		} else {
			out[i] = tensor.ZerosLike(s.tensors[j])
		}
	}
	return out
}
