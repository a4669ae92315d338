// Package spiking implements the leaky integrate-and-fire neuron model used
// by the pattern spiking network. The step rule is a pure function over a
// scalar membrane potential; all network state lives in the pattern store,
// keeping this package free of I/O and independently testable.
package spiking

import "errors"

// Config holds the tunable parameters of the integrate-and-fire model.
type Config struct {
	// Threshold is the firing threshold (theta). When a step's resulting
	// potential reaches it, the neuron fires and resets to 0. Default: 1.0.
	Threshold float64 `koanf:"threshold"`

	// Decay is the per-step leak factor (lambda) applied to the existing
	// potential before input is integrated. Default: 0.9.
	Decay float64 `koanf:"decay"`

	// Timestep is the simulation step width (dt) scaling the integrated
	// input. Default: 0.1.
	Timestep float64 `koanf:"timestep"`
}

// DefaultConfig returns the default integrate-and-fire configuration.
func DefaultConfig() Config {
	return Config{
		Threshold: 1.0,
		Decay:     0.9,
		Timestep:  0.1,
	}
}

// Validate checks the configuration for usable parameter ranges.
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return errors.New("threshold must be positive")
	}
	if c.Decay < 0 || c.Decay > 1 {
		return errors.New("decay must be between 0.0 and 1.0")
	}
	if c.Timestep <= 0 {
		return errors.New("timestep must be positive")
	}
	return nil
}

// StepResult is the outcome of one integrate-and-fire step.
type StepResult struct {
	// Potential is the membrane potential after the step. Exactly 0 when
	// the neuron fired.
	Potential float64

	// Fired reports whether the step crossed threshold.
	Fired bool
}

// Step applies one leaky integrate-and-fire update to a membrane potential:
//
//	next = potential*decay + input*timestep
//
// If next reaches the threshold the neuron fires and the potential resets to
// 0; otherwise the decayed-and-integrated potential is kept. The same rule
// serves direct stimulation and one-hop propagation, with the caller choosing
// the input (direct stimulus or link weight).
func Step(potential, input float64, cfg Config) StepResult {
	next := potential*cfg.Decay + input*cfg.Timestep
	if next >= cfg.Threshold {
		return StepResult{Potential: 0, Fired: true}
	}
	return StepResult{Potential: next, Fired: false}
}
