package personas

import (
	_ "embed"
	"fmt"
	"math/rand"
	"sort"

	"gopkg.in/yaml.v3"

	"roundtable/pkg/models"
)

//go:embed personas.yaml
var catalogYAML []byte

type catalog struct {
	Personas []models.Persona `yaml:"personas"`
}

// Registry is the process-wide static catalog of personas. Immutable after
// Load; no lifecycle.
type Registry struct {
	list   []models.Persona
	byID   map[string]models.Persona
	byName map[string]models.Persona
}

// Load parses the embedded catalog.
func Load() (*Registry, error) {
	return LoadBytes(catalogYAML)
}

// LoadBytes parses a catalog from raw YAML; used by tests.
func LoadBytes(b []byte) (*Registry, error) {
	var c catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("invalid persona catalog: %w", err)
	}
	if len(c.Personas) == 0 {
		return nil, fmt.Errorf("persona catalog is empty")
	}
	r := &Registry{byID: map[string]models.Persona{}, byName: map[string]models.Persona{}}
	for _, p := range c.Personas {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("persona missing id or name")
		}
		r.list = append(r.list, p)
		r.byID[p.ID] = p
		r.byName[p.Name] = p
	}
	return r, nil
}

// All returns every persona in catalog order.
func (r *Registry) All() []models.Persona {
	out := make([]models.Persona, len(r.list))
	copy(out, r.list)
	return out
}

// Get returns a persona by id.
func (r *Registry) Get(id string) (models.Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// GetByName returns a persona by exact display name. Compatibility shim
// for like-attribution; ids are preferred.
func (r *Registry) GetByName(name string) (models.Persona, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Autonomous returns personas allowed to act on the tick schedule.
func (r *Registry) Autonomous() []models.Persona {
	var out []models.Persona
	for _, p := range r.list {
		if p.Autonomous {
			out = append(out, p)
		}
	}
	return out
}

// SelectForTopic picks n personas for a discussion: affinity-overlap
// ranking against the topic tags with randomized tie-breaking, falling
// back to uniform-random selection. Personas in exclude (those that
// already spoke in the topic) are skipped when enough others remain.
func (r *Registry) SelectForTopic(tags []string, n int, exclude map[string]bool, rng *rand.Rand) []models.Persona {
	if n <= 0 {
		return nil
	}
	pool := make([]models.Persona, 0, len(r.list))
	for _, p := range r.list {
		if exclude != nil && exclude[p.ID] {
			continue
		}
		pool = append(pool, p)
	}
	// not enough fresh voices: fall back to the full catalog
	if len(pool) < n {
		pool = append([]models.Persona(nil), r.list...)
	}
	// shuffle first so equal-affinity personas tie-break randomly
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	tagSet := map[string]bool{}
	for _, t := range tags {
		tagSet[t] = true
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return overlap(pool[i], tagSet) > overlap(pool[j], tagSet)
	})
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]models.Persona, n)
	copy(out, pool[:n])
	return out
}

func overlap(p models.Persona, tags map[string]bool) int {
	n := 0
	for _, a := range p.Affinities {
		if tags[a] {
			n++
		}
	}
	return n
}
