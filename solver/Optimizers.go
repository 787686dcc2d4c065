package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Default hyperparameters
const (
	DefaultAdamEpsilon    = 1e-8
	DefaultAdamBeta1      = 0.9
	DefaultAdamBeta2      = 0.999
	DefaultRMSPropEpsilon = 1e-7
	DefaultRMSPropRho     = 0.9
)

// checkStep validates the hyperparameters shared by every optimizer
func checkStep(stepSize float64, batchSize int) error {
	if stepSize <= 0 {
		return fmt.Errorf("step size must be positive\n\thave(%v)", stepSize)
	}
	if batchSize < 1 {
		return fmt.Errorf("batch size must be positive\n\thave(%v)",
			batchSize)
	}
	return nil
}

// options returns the gorgonia options shared by every optimizer. No
// clipping is done if clip <= 0.
func options(stepSize float64, batchSize int, clip float64) []G.SolverOpt {
	opts := []G.SolverOpt{
		G.WithLearnRate(stepSize),
		G.WithBatchSize(float64(batchSize)),
	}
	if clip > 0 {
		opts = append(opts, G.WithClip(clip))
	}
	return opts
}

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64
	Beta1    float64
	Beta2    float64
	Batch    int
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, DefaultAdamEpsilon, DefaultAdamBeta1,
		DefaultAdamBeta2, batchSize)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64,
	batchSize int) (*Solver, error) {
	if err := checkStep(stepSize, batchSize); err != nil {
		return nil, fmt.Errorf("newadam: %v", err)
	}
	if beta1 < 0 || beta1 >= 1 || beta2 < 0 || beta2 >= 1 {
		return nil, fmt.Errorf("newadam: β1 and β2 must be in [0, 1)"+
			"\n\thave(%v, %v)", beta1, beta2)
	}

	return newSolver(Adam, AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    batchSize,
	})
}

// Create returns a new Gorgonia Adam Solver as described by the
// AdamConfig
func (a AdamConfig) Create() G.Solver {
	opts := append(options(a.StepSize, a.Batch, -1),
		G.WithEps(a.Epsilon),
		G.WithBeta1(a.Beta1),
		G.WithBeta2(a.Beta2),
	)
	return G.NewAdamSolver(opts...)
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// RMSPropConfig describes a configuration of the RMSProp solver
type RMSPropConfig struct {
	StepSize float64
	Epsilon  float64
	Rho      float64 // Decay of the squared gradient average
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewDefaultRMSProp returns a new RMSProp Solver with default
// hyperparameters
func NewDefaultRMSProp(stepSize float64, batchSize int) (*Solver, error) {
	return NewRMSProp(stepSize, DefaultRMSPropEpsilon, DefaultRMSPropRho,
		batchSize, -1.0)
}

// NewRMSProp returns a new RMSProp Solver
func NewRMSProp(stepSize, epsilon, rho float64, batchSize int,
	clip float64) (*Solver, error) {
	if err := checkStep(stepSize, batchSize); err != nil {
		return nil, fmt.Errorf("newrmsprop: %v", err)
	}
	if rho <= 0 || rho >= 1 {
		return nil, fmt.Errorf("newrmsprop: ρ must be in (0, 1)\n\thave(%v)",
			rho)
	}

	return newSolver(RMSProp, RMSPropConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Rho:      rho,
		Batch:    batchSize,
		Clip:     clip,
	})
}

// Create returns a new Gorgonia RMSProp Solver as described by the
// RMSPropConfig
func (r RMSPropConfig) Create() G.Solver {
	opts := append(options(r.StepSize, r.Batch, r.Clip),
		G.WithEps(r.Epsilon),
		G.WithRho(r.Rho),
	)
	return G.NewRMSPropSolver(opts...)
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (r RMSPropConfig) ValidType(t Type) bool {
	return t == RMSProp
}

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver.
type VanillaConfig struct {
	StepSize float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize float64, batchSize int,
	clip float64) (*Solver, error) {
	if err := checkStep(stepSize, batchSize); err != nil {
		return nil, fmt.Errorf("newvanilla: %v", err)
	}

	return newSolver(Vanilla, VanillaConfig{
		StepSize: stepSize,
		Batch:    batchSize,
		Clip:     clip,
	})
}

// Create returns a Gorgonia Vanilla Solver as described by the
// VanillaConfig
func (v VanillaConfig) Create() G.Solver {
	return G.NewVanillaSolver(options(v.StepSize, v.Batch, v.Clip)...)
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}
