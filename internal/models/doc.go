// Package models holds differentiable dynamical systems. Every model
// evaluates its vector field on tensors, so solutions obtained through
// the ivp package carry gradients with respect to the model parameters.
// The models also speak the editable parameter protocol, which lets the
// solver swap parameters in and out without the model knowing.
package models
