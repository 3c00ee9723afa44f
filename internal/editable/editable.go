// Package editable defines the protocol through which stateful objects
// expose the tensors consumed by their operations, so the differentiation
// engine can substitute perturbed copies and never double-counts a tensor
// referenced at more than one position.
package editable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/san-kum/odegrad/internal/tensor"
)

// ErrProtocol indicates a GetParams/SetParams implementation whose arity or
// ordering is inconsistent between calls.
var ErrProtocol = errors.New("editable: getparams/setparams protocol violation")

// Editable is implemented by objects whose operations read internal
// tensors. GetParams enumerates the tensors consumed when the named
// operation executes; SetParams writes tensors back in the same order and
// returns how many it consumed. Implementations must be deterministic: the
// count and aliasing pattern may not change between calls for a given
// operation as long as the object's parameter layout is unchanged.
type Editable interface {
	GetParams(op string) []*tensor.Tensor
	SetParams(op string, params ...*tensor.Tensor) (int, error)
}

// uniqueIndex records, for one (object, operation) pair, which positions of
// the full parameter list hold the identical tensor. first preserves
// first-occurrence order; groups[j] lists every position aliasing first[j].
type uniqueIndex struct {
	count  int
	first  []int
	groups [][]int
}

type cacheKey struct {
	obj Editable
	op  string
}

// The index cache is keyed by object identity, so Editable implementations
// must be pointer types. Access is guarded only against accidental
// concurrent reads; the substitution machinery itself is documented
// single-threaded-use-only.
//
// cacheLimit keeps short-lived objects from pinning the cache forever.
// Evicted entries are rebuilt on the next use; eviction narrows the
// window of the layout-drift check but never changes a dedup result.
const cacheLimit = 1024

var (
	cacheMu sync.Mutex
	cache   = map[cacheKey]*uniqueIndex{}
)

func evictForRoom() {
	if len(cache) < cacheLimit {
		return
	}
	for key := range cache {
		delete(cache, key)
		if len(cache) <= cacheLimit/2 {
			return
		}
	}
}

func buildIndex(params []*tensor.Tensor) *uniqueIndex {
	idx := &uniqueIndex{count: len(params)}
	seen := map[*tensor.Tensor]int{}
	for i, p := range params {
		if j, ok := seen[p]; ok {
			idx.groups[j] = append(idx.groups[j], i)
			continue
		}
		seen[p] = len(idx.first)
		idx.first = append(idx.first, i)
		idx.groups = append(idx.groups, []int{i})
	}
	return idx
}

func indexFor(obj Editable, op string) (*uniqueIndex, []*tensor.Tensor, error) {
	params := obj.GetParams(op)
	cacheMu.Lock()
	defer cacheMu.Unlock()
	key := cacheKey{obj, op}
	idx, ok := cache[key]
	if !ok {
		evictForRoom()
		idx = buildIndex(params)
		cache[key] = idx
	}
	if len(params) != idx.count {
		return nil, nil, fmt.Errorf("%w: %q returned %d params, previously %d",
			ErrProtocol, op, len(params), idx.count)
	}
	return idx, params, nil
}

// Forget drops the cached deduplication index for obj, for callers that
// change an object's parameter layout.
func Forget(obj Editable) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	for key := range cache {
		if key.obj == obj {
			delete(cache, key)
		}
	}
}

// UniqueParams returns the alias-free parameter list of (obj, op):
// one tensor per alias group, in first-occurrence order.
func UniqueParams(obj Editable, op string) ([]*tensor.Tensor, error) {
	idx, params, err := indexFor(obj, op)
	if err != nil {
		return nil, err
	}
	unique := make([]*tensor.Tensor, len(idx.first))
	for j, i := range idx.first {
		unique[j] = params[i]
	}
	return unique, nil
}

// SetUniqueParams expands each supplied tensor to every position of its
// alias group and writes the full list back through SetParams. Extra
// trailing tensors beyond the unique count are ignored; the number of
// unique tensors consumed is returned.
func SetUniqueParams(obj Editable, op string, params ...*tensor.Tensor) (int, error) {
	idx, _, err := indexFor(obj, op)
	if err != nil {
		return 0, err
	}
	if len(params) < len(idx.first) {
		return 0, fmt.Errorf("%w: %q needs %d unique params, got %d",
			ErrProtocol, op, len(idx.first), len(params))
	}
	full := make([]*tensor.Tensor, idx.count)
	for j, group := range idx.groups {
		for _, i := range group {
			full[i] = params[j]
		}
	}
	n, err := obj.SetParams(op, full...)
	if err != nil {
		return 0, err
	}
	if n != idx.count {
		return 0, fmt.Errorf("%w: %q set %d params, expected %d",
			ErrProtocol, op, n, idx.count)
	}
	return len(idx.first), nil
}
