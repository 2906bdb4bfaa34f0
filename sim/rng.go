package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"
)

// === ExperimentKey ===

// ExperimentKey identifies a reproducible experiment. Two runs with the same
// key and identical configuration MUST produce identical data, forests and
// decisions.
type ExperimentKey int64

// NewExperimentKey creates an ExperimentKey from a seed value.
func NewExperimentKey(seed int64) ExperimentKey {
	return ExperimentKey(seed)
}

// ClockExperimentKey seeds from the wall clock. Used when random_state is unset.
func ClockExperimentKey() ExperimentKey {
	return ExperimentKey(time.Now().UnixNano())
}

// === Subsystem Constants ===

const (
	// SubsystemData is the RNG subsystem for synthetic demand generation.
	// Uses the master seed directly.
	SubsystemData = "data"

	// SubsystemFeatures draws synthetic feature columns.
	SubsystemFeatures = "features"

	// SubsystemNoise draws the demand noise term.
	SubsystemNoise = "noise"
)

// SubsystemTree returns the subsystem name for tree i of a forest.
func SubsystemTree(i int) string {
	return fmt.Sprintf("tree_%d", i)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemData: uses the master seed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Derive every RNG from one goroutine, then
// hand each *rand.Rand to exactly one worker.
type PartitionedRNG struct {
	key        ExperimentKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from an ExperimentKey.
func NewPartitionedRNG(key ExperimentKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemData {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewPCG(uint64(derivedSeed), 0))
	p.subsystems[name] = rng
	return rng
}

// Key returns the ExperimentKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() ExperimentKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
