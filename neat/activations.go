package neat

import (
	"fmt"
	"math"
	"sort"
)

// ActivationType is a neuron activation function. slope is the neuron's
// activation slope; functions without a steepness parameter ignore it.
type ActivationType func(x, slope float64) float64

// ActivationFunctions maps function names to the actual activation functions.
// This allows configuration to specify activations by name.
var ActivationFunctions = map[string]ActivationType{
	"sigmoid":  Sigmoid,
	"tanh":     Tanh,
	"relu":     ReLU,
	"identity": Identity,
	"linear":   Identity,
	"clamped":  Clamped,
	"gaussian": Gaussian,
	"absolute": Absolute,
	"abs":      Absolute,
	"sine":     Sine,
	"step":     Step,
	"hat":      Hat,
	"square":   Square,
	"cube":     Cube,
	"exp":      Exp,
	"log":      Log,
	"inv":      Inv,
}

// GetActivation retrieves an activation function by name.
func GetActivation(name string) (ActivationType, error) {
	if fn, ok := ActivationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown activation function: %s", name)
}

// ActivationNames returns the registered names in sorted order.
func ActivationNames() []string {
	names := make([]string, 0, len(ActivationFunctions))
	for name := range ActivationFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sigmoid is the steepened logistic function 1 / (1 + exp(-slope*x)).
func Sigmoid(x, slope float64) float64 {
	return 1.0 / (1.0 + math.Exp(-slope*x))
}

// Tanh scales its input by slope.
func Tanh(x, slope float64) float64 {
	return math.Tanh(slope * x)
}

func ReLU(x, _ float64) float64 {
	return math.Max(0, x)
}

func Identity(x, _ float64) float64 {
	return x
}

// Clamped clamps output between -1 and 1.
func Clamped(x, _ float64) float64 {
	return clamp(x, -1.0, 1.0)
}

func Gaussian(x, _ float64) float64 {
	return math.Exp(-x * x / 2.0)
}

func Absolute(x, _ float64) float64 {
	return math.Abs(x)
}

func Sine(x, _ float64) float64 {
	return math.Sin(x)
}

// Step returns 1 for positive input and 0 otherwise.
func Step(x, _ float64) float64 {
	if x > 0 {
		return 1.0
	}
	return 0.0
}

// Hat is a triangular pulse centered at 0.
func Hat(x, _ float64) float64 {
	return math.Max(0.0, 1.0-math.Abs(x))
}

func Square(x, _ float64) float64 {
	return x * x
}

func Cube(x, _ float64) float64 {
	return x * x * x
}

// Exp clamps its input to avoid overflow.
func Exp(x, _ float64) float64 {
	return math.Exp(clamp(x, -60.0, 60.0))
}

// Log returns log(max(1e-9, x)).
func Log(x, _ float64) float64 {
	return math.Log(math.Max(1e-9, x))
}

// Inv returns 1/x, or 0 for x == 0.
func Inv(x, _ float64) float64 {
	if x == 0.0 {
		return 0.0
	}
	return 1.0 / x
}
