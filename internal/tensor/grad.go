package tensor

import (
	"errors"
	"fmt"
)

type GradOptions struct {
	// CreateGraph keeps the cotangent computation connected to the graph
	// so that the result can be differentiated again.
	CreateGraph bool
}

// Grad computes the vector-Jacobian product of output with respect to each
// input: cotangent propagated backward through the graph. Inputs that do
// not influence the output receive explicit zero tensors, never nil.
// A nil cotangent defaults to ones.
func Grad(output, cotangent *Tensor, inputs []*Tensor, opts GradOptions) ([]*Tensor, error) {
	if cotangent == nil {
		cotangent = OnesLike(output)
	}
	if !sameShape(cotangent.shape, output.shape) {
		return nil, fmt.Errorf("tensor: cotangent shape %v does not match output shape %v", cotangent.shape, output.shape)
	}

	cots := map[*Tensor]*Tensor{}
	if output.node != nil {
		if err := propagate(output, cotangent, cots, opts); err != nil {
			return nil, err
		}
	} else {
		cots[output] = cotangent
	}

	res := make([]*Tensor, len(inputs))
	for i, in := range inputs {
		if g, ok := cots[in]; ok {
			res[i] = g
		} else {
			res[i] = ZerosLike(in)
		}
	}
	return res, nil
}

// propagate walks the ancestor nodes of root in topological order,
// accumulating cotangents per tensor.
func propagate(root, cotangent *Tensor, cots map[*Tensor]*Tensor, opts GradOptions) error {
	// Count, for every reachable node, how many reachable consumer edges
	// point at its outputs. A node fires only after all of them resolved.
	pending := map[*node]int{}
	visited := map[*node]bool{}
	var visit func(n *node)
	visit = func(n *node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, in := range n.inputs {
			if in.node != nil {
				pending[in.node]++
				visit(in.node)
			}
		}
	}
	visit(root.node)

	cots[root] = cotangent
	queue := []*node{root.node}
	for len(queue) > 0 {
		n := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if n.back == nil {
			continue // leaf
		}
		outCots := make([]*Tensor, len(n.outs))
		anyCot := false
		for i, o := range n.outs {
			outCots[i] = cots[o]
			anyCot = anyCot || outCots[i] != nil
		}
		var gs []*Tensor
		if anyCot {
			var err error
			gs, err = n.back(outCots, opts.CreateGraph)
			if err != nil {
				return err
			}
			if len(gs) != len(n.inputs) {
				return errors.New("tensor: backward returned wrong cotangent count")
			}
		} else {
			// No cotangent ever arrived at this node (a consumer reported
			// no dependence); keep walking so upstream counts resolve.
			gs = make([]*Tensor, len(n.inputs))
		}
		for i, in := range n.inputs {
			if gs[i] != nil {
				cots[in] = accumulated(cots[in], gs[i], in)
			}
			if in.node != nil {
				pending[in.node]--
				if pending[in.node] == 0 {
					queue = append(queue, in.node)
				}
			}
		}
	}
	return nil
}

func accumulated(have, g *Tensor, target *Tensor) *Tensor {
	if !sameShape(g.shape, target.shape) {
		g = Reshape(g, target.shape...)
	}
	if have == nil {
		return g
	}
	return Add(have, g)
}

// CustomOp registers outputs as the result of a primitive whose forward
// pass ran outside the graph. back receives one cotangent per output (nil
// entries mean zero) and returns one cotangent per input; nil entries are
// skipped. When no input is tracked the outputs stay untracked.
func CustomOp(inputs, outputs []*Tensor, back func(cots []*Tensor, track bool) ([]*Tensor, error)) {
	if !anyTracked(inputs) {
		return
	}
	n := &node{inputs: inputs, outs: outputs, back: back}
	for _, o := range outputs {
		o.node = n
	}
}

// Reaches reports, for each input, whether it appears in the ancestry of
// output. Used by the protocol diagnostics to decide which declared
// tensors actually influence an operation.
func Reaches(output *Tensor, inputs []*Tensor) []bool {
	seen := map[*Tensor]bool{output: true}
	visited := map[*node]bool{}
	var visit func(n *node)
	visit = func(n *node) {
		if n == nil || visited[n] {
			return
		}
		visited[n] = true
		for _, o := range n.outs {
			seen[o] = true
		}
		for _, in := range n.inputs {
			seen[in] = true
			visit(in.node)
		}
	}
	visit(output.node)

	res := make([]bool, len(inputs))
	for i, in := range inputs {
		res[i] = seen[in]
	}
	return res
}
