package refentity

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"

	"SmartAd/api/setup/audit"
	"SmartAd/api/setup/similarity"
)

// Resolver finds, matches and creates reference entities.
type Resolver struct {
	repo   Repository
	scorer *similarity.Scorer
	audit  audit.Sink
	log    logrus.FieldLogger
}

func NewResolver(repo Repository, scorer *similarity.Scorer, sink audit.Sink, log logrus.FieldLogger) *Resolver {
	if scorer == nil {
		scorer = similarity.NewScorer(similarity.DefaultThreshold)
	}
	return &Resolver{repo: repo, scorer: scorer, audit: sink, log: log}
}

func (r *Resolver) Scorer() *similarity.Scorer { return r.scorer }

// LoadCatalog snapshots every reference table.
func (r *Resolver) LoadCatalog(ctx context.Context) (*Catalog, error) {
	all := make(map[Kind][]Entity, len(All()))
	for _, kind := range All() {
		list, err := r.repo.List(ctx, kind)
		if err != nil {
			return nil, err
		}
		all[kind] = list
	}
	return NewCatalog(r.scorer, all), nil
}

// FindSimilar ranks existing names of kind against name. A non-positive
// threshold uses the resolver's own.
func (r *Resolver) FindSimilar(ctx context.Context, kind Kind, name string, threshold float64) ([]similarity.Match, error) {
	list, err := r.repo.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	scorer := r.scorer
	if threshold > 0 {
		scorer = similarity.NewScorer(threshold)
	}
	return NewCatalog(scorer, map[Kind][]Entity{kind: list}).FindSimilar(kind, name), nil
}

func (r *Resolver) Get(ctx context.Context, kind Kind, id int64) (*Entity, error) {
	e, err := r.repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s #%d", ErrEntityNotFound, kind.Label(), id)
	}
	return e, nil
}

// GetOrCreate returns the entity whose unique key matches fields, creating
// it when absent. Concurrent callers with the same key are serialized by an
// advisory lock, and a lost insert race falls back to a lookup, so repeated
// calls never produce a second row.
func (r *Resolver) GetOrCreate(ctx context.Context, kind Kind, fields Fields, createdBy string) (Entity, bool, error) {
	if missing := fields.Missing(kind); len(missing) > 0 {
		return Entity{}, false, fmt.Errorf("%w: %s needs %s", ErrMissingFields, kind.Label(), strings.Join(missing, ", "))
	}
	key := fields.Key(kind)
	if err := r.repo.LockKey(ctx, kind, key); err != nil {
		return Entity{}, false, err
	}
	if existing, err := r.repo.FindByKey(ctx, kind, key); err != nil {
		return Entity{}, false, err
	} else if existing != nil {
		return *existing, false, nil
	}

	e := fields.Entity(kind, createdBy)
	id, inserted, err := r.repo.Insert(ctx, e)
	if err != nil {
		return Entity{}, false, err
	}
	if !inserted {
		existing, err := r.repo.FindByKey(ctx, kind, key)
		if err != nil {
			return Entity{}, false, err
		}
		if existing == nil {
			return Entity{}, false, fmt.Errorf("%s %q: insert conflicted but no row found", kind.Label(), key)
		}
		return *existing, false, nil
	}
	e.ID = id

	if r.audit != nil {
		if err := r.audit.Record(ctx, audit.Created(kind.Table(), strconv.FormatInt(id, 10), e, createdBy)); err != nil {
			return Entity{}, false, err
		}
	}
	if r.log != nil {
		r.log.WithFields(logrus.Fields{"kind": kind.String(), "id": id, "key": key}).Info("reference entity created")
	}
	return e, true, nil
}

// Search ranks active entities of kind by fuzzy subsequence match on query,
// for operators choosing a use_existing target by hand.
func (r *Resolver) Search(ctx context.Context, kind Kind, query string, limit int) ([]Entity, error) {
	list, err := r.repo.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	active := list[:0:0]
	for _, e := range list {
		if e.Status == StatusActive {
			active = append(active, e)
		}
	}
	list = active

	query = strings.TrimSpace(query)
	if query == "" {
		return truncate(list, limit), nil
	}

	targets := make([]string, len(list))
	for i, e := range list {
		targets[i] = e.Code + " " + e.Name
	}
	ranks := fuzzy.RankFindNormalizedFold(query, targets)
	sort.Sort(ranks)

	out := make([]Entity, 0, len(ranks))
	for _, rank := range ranks {
		out = append(out, list[rank.OriginalIndex])
	}
	return truncate(out, limit), nil
}

func truncate(list []Entity, limit int) []Entity {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}
