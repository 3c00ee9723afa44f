package editable

import (
	"errors"

	"github.com/san-kum/odegrad/internal/tensor"
)

// Snapshot is the saved unique-parameter state of one (object, operation)
// pair. Apply and Restore move the object between the saved values and a
// substituted set without the caller touching position bookkeeping.
type Snapshot struct {
	obj    Editable
	op     string
	params []*tensor.Tensor
}

func TakeSnapshot(obj Editable, op string) (*Snapshot, error) {
	params, err := UniqueParams(obj, op)
	if err != nil {
		return nil, err
	}
	return &Snapshot{obj: obj, op: op, params: params}, nil
}

func (s *Snapshot) Params() []*tensor.Tensor {
	return append([]*tensor.Tensor(nil), s.params...)
}

func (s *Snapshot) Restore() error {
	_, err := SetUniqueParams(s.obj, s.op, s.params...)
	return err
}

// Scoped installs params as the unique parameters of (obj, op), runs fn,
// and restores the previous values on every exit path. The error from fn
// is returned, joined with any restoration failure. Not safe for
// concurrent use on the same object.
func Scoped(obj Editable, op string, params []*tensor.Tensor, fn func() error) (err error) {
	snap, err := TakeSnapshot(obj, op)
	if err != nil {
		return err
	}
	if _, err = SetUniqueParams(obj, op, params...); err != nil {
		return err
	}
	defer func() {
		if rerr := snap.Restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn()
}
