package neat

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config stores the configuration parameters for the NEAT algorithm.
type Config struct {
	Neat         NeatConfig         `yaml:"neat"`
	Genome       GenomeConfig       `yaml:"genome"`
	Reproduction ReproductionConfig `yaml:"reproduction"`
	SpeciesSet   SpeciesSetConfig   `yaml:"species_set"`
	Stagnation   StagnationConfig   `yaml:"stagnation"`
}

// NeatConfig holds run-level parameters.
type NeatConfig struct {
	PopSize              int     `ini:"pop_size" yaml:"pop_size"`
	FitnessThreshold     float64 `ini:"fitness_threshold" yaml:"fitness_threshold"`           // Used by the FitnessReached terminator
	Seed                 int64   `ini:"seed" yaml:"seed"`                                     // 0 means seed from the clock
	EvaluationWorkers    int     `ini:"evaluation_workers" yaml:"evaluation_workers"`         // 0 means GOMAXPROCS
	InnovationResetScope string  `ini:"innovation_reset_scope" yaml:"innovation_reset_scope"` // "run" or "generation"
}

// GenomeConfig holds parameters for the structure and mutation of genomes.
type GenomeConfig struct {
	// --- Topology ---
	NumInputs         int    `ini:"num_inputs" yaml:"num_inputs"`
	NumOutputs        int    `ini:"num_outputs" yaml:"num_outputs"`
	BiasNeuron        bool   `ini:"bias_neuron" yaml:"bias_neuron"`
	InitialConnection string `ini:"initial_connection" yaml:"initial_connection"` // "full" or "unconnected"
	RecurrentAllowed  bool   `ini:"recurrent_allowed" yaml:"recurrent_allowed"`

	// --- Neuron activation parameters ---
	HiddenActivation string  `ini:"hidden_activation" yaml:"hidden_activation"`
	OutputActivation string  `ini:"output_activation" yaml:"output_activation"`
	ActivationSlope  float64 `ini:"activation_slope" yaml:"activation_slope"`

	// --- Link weights ---
	WeightInitType  string  `ini:"weight_init_type" yaml:"weight_init_type"` // "gaussian" or "uniform"
	WeightInitMean  float64 `ini:"weight_init_mean" yaml:"weight_init_mean"`
	WeightInitStdev float64 `ini:"weight_init_stdev" yaml:"weight_init_stdev"`
	WeightMinValue  float64 `ini:"weight_min_value" yaml:"weight_min_value"`
	WeightMaxValue  float64 `ini:"weight_max_value" yaml:"weight_max_value"`

	// --- Mutation rates ---
	AddLinkProb                float64 `ini:"add_link_probability" yaml:"add_link_probability"`
	AddNeuronProb              float64 `ini:"add_neuron_probability" yaml:"add_neuron_probability"`
	WeightMutationProb         float64 `ini:"weight_mutation_probability" yaml:"weight_mutation_probability"`
	WeightPerturbMagnitude     float64 `ini:"weight_perturb_magnitude" yaml:"weight_perturb_magnitude"`
	WeightPerturbType          string  `ini:"weight_perturb_type" yaml:"weight_perturb_type"`             // "gaussian" or "uniform"
	WeightMutationPolicy       string  `ini:"weight_mutation_policy" yaml:"weight_mutation_policy"`       // "perturb", "reset" or "mixed"
	WeightReplaceRate          float64 `ini:"weight_replace_rate" yaml:"weight_replace_rate"`             // Share of weight mutations that reset under "mixed"
	ToggleEnableProb           float64 `ini:"toggle_enable_probability" yaml:"toggle_enable_probability"`
	StructuralMutationAttempts int     `ini:"structural_mutation_attempts" yaml:"structural_mutation_attempts"`
	SingleStructuralMutation   bool    `ini:"single_structural_mutation" yaml:"single_structural_mutation"`
}

// ReproductionConfig holds parameters related to reproduction.
type ReproductionConfig struct {
	ElitismPerSpecies     int     `ini:"elitism_count_per_species" yaml:"elitism_count_per_species"`
	SurvivalThreshold     float64 `ini:"survival_threshold" yaml:"survival_threshold"`
	CrossoverProb         float64 `ini:"crossover_probability" yaml:"crossover_probability"`
	ReenableProb          float64 `ini:"reenable_probability" yaml:"reenable_probability"`
	DisjointInclusionProb float64 `ini:"disjoint_inclusion_probability" yaml:"disjoint_inclusion_probability"`
}

// SpeciesSetConfig holds parameters related to speciation.
type SpeciesSetConfig struct {
	CompatibilityThreshold float64 `ini:"compatibility_threshold" yaml:"compatibility_threshold"`
	ExcessCoefficient      float64 `ini:"excess_coefficient" yaml:"excess_coefficient"`     // c1
	DisjointCoefficient    float64 `ini:"disjoint_coefficient" yaml:"disjoint_coefficient"` // c2
	WeightCoefficient      float64 `ini:"weight_coefficient" yaml:"weight_coefficient"`     // c3
	NormalizeThreshold     int     `ini:"normalize_threshold" yaml:"normalize_threshold"`   // Below this gene count N is 1
}

// StagnationConfig holds parameters related to species stagnation.
type StagnationConfig struct {
	SpeciesFitnessFunc string `ini:"species_fitness_func" yaml:"species_fitness_func"`
	StagnationLimit    int    `ini:"stagnation_limit" yaml:"stagnation_limit"`
	SpeciesElitism     int    `ini:"species_elitism" yaml:"species_elitism"`
}

// DefaultConfig returns the embedded default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("neat: parsing embedded defaults: %v", err))
	}
	return cfg
}

// LoadConfig loads configuration parameters from an INI file. Keys missing
// from the file keep their default values.
func LoadConfig(filePath string) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}

	config := DefaultConfig()

	sections := []struct {
		name   string
		target any
	}{
		{"NEAT", &config.Neat},
		{"DefaultGenome", &config.Genome},
		{"DefaultReproduction", &config.Reproduction},
		{"DefaultSpeciesSet", &config.SpeciesSet},
		{"DefaultStagnation", &config.Stagnation},
	}
	for _, s := range sections {
		if !cfg.HasSection(s.name) {
			continue
		}
		if err := cfg.Section(s.name).StrictMapTo(s.target); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", s.name, err)
		}
	}

	config.clean()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadYAMLConfig loads configuration from a YAML file, merging with the
// embedded defaults. If path is empty, only the defaults are used. Unknown
// keys are rejected.
func LoadYAMLConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: parsing config file: %v", ErrConfiguration, err)
		}
	}
	config.clean()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// clean trims inline comments and case from enumerated string options.
func (c *Config) clean() {
	c.Neat.InnovationResetScope = cleanIniString(c.Neat.InnovationResetScope)
	c.Genome.InitialConnection = cleanIniString(c.Genome.InitialConnection)
	c.Genome.HiddenActivation = cleanIniString(c.Genome.HiddenActivation)
	c.Genome.OutputActivation = cleanIniString(c.Genome.OutputActivation)
	c.Genome.WeightInitType = cleanIniString(c.Genome.WeightInitType)
	c.Genome.WeightPerturbType = cleanIniString(c.Genome.WeightPerturbType)
	c.Genome.WeightMutationPolicy = cleanIniString(c.Genome.WeightMutationPolicy)
	c.Stagnation.SpeciesFitnessFunc = cleanIniString(c.Stagnation.SpeciesFitnessFunc)
}

// Validate checks every parameter and returns the first problem found,
// wrapped in ErrConfiguration.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
	}
	probs := []struct {
		name  string
		value float64
	}{
		{"add_link_probability", c.Genome.AddLinkProb},
		{"add_neuron_probability", c.Genome.AddNeuronProb},
		{"weight_mutation_probability", c.Genome.WeightMutationProb},
		{"weight_replace_rate", c.Genome.WeightReplaceRate},
		{"toggle_enable_probability", c.Genome.ToggleEnableProb},
		{"survival_threshold", c.Reproduction.SurvivalThreshold},
		{"crossover_probability", c.Reproduction.CrossoverProb},
		{"reenable_probability", c.Reproduction.ReenableProb},
		{"disjoint_inclusion_probability", c.Reproduction.DisjointInclusionProb},
	}
	for _, p := range probs {
		if p.value < 0 || p.value > 1 {
			return fail("%s must be between 0 and 1, got %v", p.name, p.value)
		}
	}

	if c.Neat.PopSize <= 0 {
		return fail("pop_size must be positive")
	}
	if c.Neat.EvaluationWorkers < 0 {
		return fail("evaluation_workers cannot be negative")
	}
	if _, err := ParseResetScope(c.Neat.InnovationResetScope); err != nil {
		return fail("%v", err)
	}
	if c.Genome.NumInputs <= 0 {
		return fail("num_inputs must be positive")
	}
	if c.Genome.NumOutputs <= 0 {
		return fail("num_outputs must be positive")
	}
	switch c.Genome.InitialConnection {
	case "full", "unconnected":
	default:
		return fail("invalid initial_connection '%s'", c.Genome.InitialConnection)
	}
	for _, name := range []string{c.Genome.HiddenActivation, c.Genome.OutputActivation} {
		if _, err := GetActivation(name); err != nil {
			return fail("%v (known: %s)", err, strings.Join(ActivationNames(), ", "))
		}
	}
	if c.Genome.ActivationSlope <= 0 {
		return fail("activation_slope must be positive")
	}
	if c.Genome.WeightMaxValue < c.Genome.WeightMinValue {
		return fail("weight_max_value cannot be less than weight_min_value")
	}
	if c.Genome.WeightInitStdev < 0 {
		return fail("weight_init_stdev cannot be negative")
	}
	for _, t := range []string{c.Genome.WeightInitType, c.Genome.WeightPerturbType} {
		if t != "gaussian" && t != "uniform" {
			return fail("invalid distribution type '%s', must be 'gaussian' or 'uniform'", t)
		}
	}
	if c.Genome.WeightPerturbMagnitude < 0 {
		return fail("weight_perturb_magnitude cannot be negative")
	}
	if _, err := ParseWeightPolicy(c.Genome.WeightMutationPolicy); err != nil {
		return fail("%v", err)
	}
	if c.Genome.StructuralMutationAttempts <= 0 {
		return fail("structural_mutation_attempts must be positive")
	}
	if c.Reproduction.ElitismPerSpecies < 0 {
		return fail("elitism_count_per_species cannot be negative")
	}
	if c.SpeciesSet.CompatibilityThreshold <= 0 {
		return fail("compatibility_threshold must be positive")
	}
	if c.SpeciesSet.ExcessCoefficient < 0 || c.SpeciesSet.DisjointCoefficient < 0 || c.SpeciesSet.WeightCoefficient < 0 {
		return fail("distance coefficients cannot be negative")
	}
	if c.SpeciesSet.NormalizeThreshold < 0 {
		return fail("normalize_threshold cannot be negative")
	}
	if c.Stagnation.StagnationLimit <= 0 {
		return fail("stagnation_limit must be positive")
	}
	if c.Stagnation.SpeciesElitism < 0 {
		return fail("species_elitism cannot be negative")
	}
	if _, ok := StatFunctions[c.Stagnation.SpeciesFitnessFunc]; !ok {
		return fail("invalid species_fitness_func '%s'", c.Stagnation.SpeciesFitnessFunc)
	}
	return nil
}

// Distance returns the compatibility distance parameters.
func (sc *SpeciesSetConfig) Distance() DistanceConfig {
	return DistanceConfig{
		ExcessCoefficient:   sc.ExcessCoefficient,
		DisjointCoefficient: sc.DisjointCoefficient,
		WeightCoefficient:   sc.WeightCoefficient,
		NormalizeThreshold:  sc.NormalizeThreshold,
	}
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.ToLower(strings.TrimSpace(s))
}
