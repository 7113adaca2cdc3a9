// Package op holds the operator layers of the forward path. A layer is a
// unit of computation with fixed-arity weight, input and output slots,
// declared at construction. Weight slots are usually zero-copy views into
// the mapped weight file.
package op

import (
	"github.com/skarn-ml/skarn/internal/device"
	"github.com/skarn-ml/skarn/internal/status"
	"github.com/skarn-ml/skarn/internal/tensor"
)

// Layer carries the slot plumbing shared by all operator layers.
type Layer struct {
	name    string
	device  device.Kind
	weights []*tensor.Tensor
	inputs  []*tensor.Tensor
	outputs []*tensor.Tensor
}

func newLayer(name string, kind device.Kind, nWeights, nInputs, nOutputs int) Layer {
	return Layer{
		name:    name,
		device:  kind,
		weights: make([]*tensor.Tensor, nWeights),
		inputs:  make([]*tensor.Tensor, nInputs),
		outputs: make([]*tensor.Tensor, nOutputs),
	}
}

func (l *Layer) Name() string {
	return l.name
}

func (l *Layer) Device() device.Kind {
	return l.device
}

// SetWeight binds a zero-copy fp32 view over raw weight memory, tagged with
// the layer's device as its intended placement. The memory itself stays
// where it physically is; moving it to an accelerator is a separate,
// explicit copy.
func (l *Layer) SetWeight(slot int, dims []int, data []float32) error {
	if slot < 0 || slot >= len(l.weights) {
		return status.InternalError("%s: weight slot %d outside arity %d", l.name, slot, len(l.weights))
	}
	w, err := tensor.FromFloats(data, device.KindHost, dims...)
	if err != nil {
		return err
	}
	w.SetPlacement(l.device)
	l.weights[slot] = w
	return nil
}

// BindWeight binds an already-built tensor, used when a weight has been
// copied onto the layer's device.
func (l *Layer) BindWeight(slot int, t *tensor.Tensor) error {
	if slot < 0 || slot >= len(l.weights) {
		return status.InternalError("%s: weight slot %d outside arity %d", l.name, slot, len(l.weights))
	}
	l.weights[slot] = t
	return nil
}

func (l *Layer) SetInput(slot int, t *tensor.Tensor) error {
	if slot < 0 || slot >= len(l.inputs) {
		return status.InternalError("%s: input slot %d outside arity %d", l.name, slot, len(l.inputs))
	}
	l.inputs[slot] = t
	return nil
}

func (l *Layer) SetOutput(slot int, t *tensor.Tensor) error {
	if slot < 0 || slot >= len(l.outputs) {
		return status.InternalError("%s: output slot %d outside arity %d", l.name, slot, len(l.outputs))
	}
	l.outputs[slot] = t
	return nil
}

func (l *Layer) Weight(slot int) *tensor.Tensor {
	return l.weights[slot]
}

func (l *Layer) Input(slot int) *tensor.Tensor {
	return l.inputs[slot]
}

func (l *Layer) Output(slot int) *tensor.Tensor {
	return l.outputs[slot]
}

// checkBound verifies every slot is bound before a forward pass.
func (l *Layer) checkBound() error {
	for i, w := range l.weights {
		if w == nil {
			return status.InternalError("%s: weight slot %d unbound", l.name, i)
		}
	}
	for i, in := range l.inputs {
		if in == nil {
			return status.InternalError("%s: input slot %d unbound", l.name, i)
		}
	}
	for i, out := range l.outputs {
		if out == nil {
			return status.InternalError("%s: output slot %d unbound", l.name, i)
		}
	}
	return nil
}

// checkResident fails when a tensor the kernel is about to touch is not
// physically resident on the layer's device. A placement tag alone is not
// residency.
func (l *Layer) checkResident(role string, t *tensor.Tensor) error {
	if got := t.Resident(); got != l.device {
		return status.InternalError("%s: %s resident on %s, kernel runs on %s; copy it first",
			l.name, role, got, l.device)
	}
	return nil
}
