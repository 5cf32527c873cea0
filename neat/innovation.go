package neat

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// InnovationKind distinguishes the two structural mutation events.
type InnovationKind int

const (
	InnovationLink InnovationKind = iota
	InnovationNeuron
)

func (k InnovationKind) String() string {
	switch k {
	case InnovationLink:
		return "link"
	case InnovationNeuron:
		return "neuron"
	default:
		return fmt.Sprintf("InnovationKind(%d)", int(k))
	}
}

// ResetScope controls how long structural requests stay deduplicated.
type ResetScope int

const (
	// ScopeRunLifetime never forgets an innovation (classic NEAT).
	ScopeRunLifetime ResetScope = iota
	// ScopePerGeneration forgets lookups at each generation boundary.
	// Counters keep increasing so numbers are never reused.
	ScopePerGeneration
)

func (s ResetScope) String() string {
	if s == ScopePerGeneration {
		return "generation"
	}
	return "run"
}

// ParseResetScope converts a config value ("run" or "generation") to a ResetScope.
func ParseResetScope(s string) (ResetScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "run", "run_lifetime", "":
		return ScopeRunLifetime, nil
	case "generation", "per_generation":
		return ScopePerGeneration, nil
	default:
		return ScopeRunLifetime, fmt.Errorf("invalid innovation_reset_scope '%s', must be 'run' or 'generation'", s)
	}
}

// Innovation records one structural mutation event.
// Link innovations carry From/To; neuron innovations carry the split link's
// innovation and the id of the neuron it created.
type Innovation struct {
	ID              uint64         `json:"id"`
	Kind            InnovationKind `json:"kind"`
	From            uint64         `json:"from,omitempty"`
	To              uint64         `json:"to,omitempty"`
	SplitInnovation uint64         `json:"split_innovation,omitempty"`
	NeuronID        uint64         `json:"neuron_id,omitempty"`
}

// LinkKey identifies a directed link by its endpoint neuron ids.
type LinkKey struct {
	From uint64
	To   uint64
}

// InnovationDB is the ledger that hands out innovation numbers and neuron ids.
// It is the single writer shared by every mutation in a run and is safe for
// concurrent use.
type InnovationDB struct {
	mu sync.Mutex

	scope          ResetScope
	nextInnovation uint64
	nextNeuron     uint64

	links   map[LinkKey]uint64    // (from,to) -> link innovation id
	neurons map[uint64]Innovation // split link innovation -> neuron innovation
	ledger  []Innovation
}

// NewInnovationDB creates an empty ledger. Innovation and neuron ids start at 1.
func NewInnovationDB(scope ResetScope) *InnovationDB {
	return &InnovationDB{
		scope:          scope,
		nextInnovation: 1,
		nextNeuron:     1,
		links:          make(map[LinkKey]uint64),
		neurons:        make(map[uint64]Innovation),
	}
}

// Scope returns the reset policy of the ledger.
func (db *InnovationDB) Scope() ResetScope {
	return db.scope
}

// LinkInnovation returns the innovation id for a new link from -> to,
// creating it if the pair has not been seen in the current scope.
func (db *InnovationDB) LinkInnovation(from, to uint64) (uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := LinkKey{From: from, To: to}
	if id, ok := db.links[key]; ok {
		return id, nil
	}
	id, err := db.allocInnovation()
	if err != nil {
		return 0, err
	}
	db.links[key] = id
	db.ledger = append(db.ledger, Innovation{ID: id, Kind: InnovationLink, From: from, To: to})
	return id, nil
}

// NeuronInnovation returns the neuron id and innovation id for splitting the
// link with the given innovation, creating both if needed.
func (db *InnovationDB) NeuronInnovation(splitInnovation uint64) (neuronID, innovationID uint64, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if rec, ok := db.neurons[splitInnovation]; ok {
		return rec.NeuronID, rec.ID, nil
	}
	if db.nextNeuron == math.MaxUint64 {
		return 0, 0, fmt.Errorf("%w: neuron ids exhausted", ErrInnovationOverflow)
	}
	innovationID, err = db.allocInnovation()
	if err != nil {
		return 0, 0, err
	}
	neuronID = db.nextNeuron
	db.nextNeuron++

	rec := Innovation{ID: innovationID, Kind: InnovationNeuron, SplitInnovation: splitInnovation, NeuronID: neuronID}
	db.ledger = append(db.ledger, rec)
	db.neurons[splitInnovation] = rec
	return neuronID, innovationID, nil
}

// LookupNeuronInnovation reports the neuron id a split of splitInnovation
// would produce in the current scope, without recording anything.
func (db *InnovationDB) LookupNeuronInnovation(splitInnovation uint64) (uint64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, ok := db.neurons[splitInnovation]
	if !ok {
		return 0, false
	}
	return rec.NeuronID, true
}

// LookupLinkInnovation reports the innovation id of from -> to in the current
// scope, without recording anything.
func (db *InnovationDB) LookupLinkInnovation(from, to uint64) (uint64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	id, ok := db.links[LinkKey{From: from, To: to}]
	return id, ok
}

// ReserveNeuronIDs allocates n consecutive neuron ids. It is used once per run
// for the input, bias and output neurons every genome shares.
func (db *InnovationDB) ReserveNeuronIDs(n int) ([]uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		if db.nextNeuron == math.MaxUint64 {
			return nil, fmt.Errorf("%w: neuron ids exhausted", ErrInnovationOverflow)
		}
		ids = append(ids, db.nextNeuron)
		db.nextNeuron++
	}
	return ids, nil
}

// BeginGeneration marks a generation boundary. Under ScopePerGeneration the
// lookup tables are cleared; the ledger and the counters are kept.
func (db *InnovationDB) BeginGeneration() {
	if db.scope != ScopePerGeneration {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	db.links = make(map[LinkKey]uint64)
	db.neurons = make(map[uint64]Innovation)
}

// Ledger returns a copy of every innovation recorded so far, in creation order.
func (db *InnovationDB) Ledger() []Innovation {
	db.mu.Lock()
	defer db.mu.Unlock()

	out := make([]Innovation, len(db.ledger))
	copy(out, db.ledger)
	return out
}

// Len returns the number of innovations recorded.
func (db *InnovationDB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.ledger)
}

// allocInnovation must be called with mu held.
func (db *InnovationDB) allocInnovation() (uint64, error) {
	if db.nextInnovation == math.MaxUint64 {
		return 0, fmt.Errorf("%w: innovation ids exhausted", ErrInnovationOverflow)
	}
	id := db.nextInnovation
	db.nextInnovation++
	return id, nil
}

// InnovationSnapshot is the serializable state of an InnovationDB.
type InnovationSnapshot struct {
	Scope          ResetScope   `json:"scope"`
	NextInnovation uint64       `json:"next_innovation"`
	NextNeuron     uint64       `json:"next_neuron"`
	Ledger         []Innovation `json:"ledger"`
	// Active lists the innovation ids still deduplicated in the current scope.
	Active []uint64 `json:"active"`
}

// Snapshot captures the ledger, counters and active lookups.
func (db *InnovationDB) Snapshot() InnovationSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()

	active := make([]uint64, 0, len(db.links)+len(db.neurons))
	for _, id := range db.links {
		active = append(active, id)
	}
	for _, rec := range db.neurons {
		active = append(active, rec.ID)
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })

	ledger := make([]Innovation, len(db.ledger))
	copy(ledger, db.ledger)
	return InnovationSnapshot{
		Scope:          db.scope,
		NextInnovation: db.nextInnovation,
		NextNeuron:     db.nextNeuron,
		Ledger:         ledger,
		Active:         active,
	}
}

// RestoreInnovations rebuilds a ledger from a snapshot.
func RestoreInnovations(s InnovationSnapshot) (*InnovationDB, error) {
	db := NewInnovationDB(s.Scope)
	db.ledger = make([]Innovation, len(s.Ledger))
	copy(db.ledger, s.Ledger)

	var maxInnovation, maxNeuron uint64
	byID := make(map[uint64]int, len(db.ledger))
	for i, rec := range db.ledger {
		if _, dup := byID[rec.ID]; dup {
			return nil, fmt.Errorf("duplicate innovation %d in snapshot", rec.ID)
		}
		byID[rec.ID] = i
		maxInnovation = max(maxInnovation, rec.ID)
		maxNeuron = max(maxNeuron, rec.NeuronID)
	}
	if s.NextInnovation <= maxInnovation || (maxNeuron > 0 && s.NextNeuron <= maxNeuron) {
		return nil, fmt.Errorf("snapshot counters behind ledger (next innovation %d, next neuron %d)", s.NextInnovation, s.NextNeuron)
	}
	db.nextInnovation = s.NextInnovation
	db.nextNeuron = s.NextNeuron

	for _, id := range s.Active {
		i, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("active innovation %d missing from ledger", id)
		}
		rec := db.ledger[i]
		switch rec.Kind {
		case InnovationLink:
			db.links[LinkKey{From: rec.From, To: rec.To}] = rec.ID
		case InnovationNeuron:
			db.neurons[rec.SplitInnovation] = rec
		}
	}
	return db, nil
}
