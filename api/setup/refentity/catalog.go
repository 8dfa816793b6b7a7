package refentity

import (
	"SmartAd/api/setup/similarity"
)

// Catalog is an in-memory snapshot of the reference tables, loaded once per
// upload so rows are matched without per-row queries.
type Catalog struct {
	scorer *similarity.Scorer
	byKind map[Kind][]Entity
	byKey  map[Kind]map[string]Entity
}

func NewCatalog(scorer *similarity.Scorer, entities map[Kind][]Entity) *Catalog {
	c := &Catalog{
		scorer: scorer,
		byKind: make(map[Kind][]Entity, len(entities)),
		byKey:  make(map[Kind]map[string]Entity, len(entities)),
	}
	for kind, list := range entities {
		c.byKind[kind] = list
		idx := make(map[string]Entity, len(list))
		for _, e := range list {
			idx[e.Key()] = e
		}
		c.byKey[kind] = idx
	}
	return c
}

// Lookup finds an entity by its normalized unique key.
func (c *Catalog) Lookup(kind Kind, key string) *Entity {
	e, ok := c.byKey[kind][similarity.Normalize(key)]
	if !ok {
		return nil
	}
	return &e
}

// FindSimilar ranks the kind's entity names against name.
func (c *Catalog) FindSimilar(kind Kind, name string) []similarity.Match {
	list := c.byKind[kind]
	candidates := make([]similarity.Candidate, len(list))
	for i, e := range list {
		candidates[i] = similarity.Candidate{ID: e.ID, Name: e.Name}
	}
	return c.scorer.Rank(name, candidates)
}
