package ratesupload

import (
	"context"
	"fmt"
	"strings"

	"SmartAd/api/constants"
	"SmartAd/api/setup/refentity"
	"SmartAd/api/setup/similarity"
)

// Resolver detects duplicate rates and near-duplicate reference names for
// validated rows.
type Resolver struct {
	rates RateRepository
	refs  *refentity.Resolver
}

func NewResolver(rates RateRepository, refs *refentity.Resolver) *Resolver {
	return &Resolver{rates: rates, refs: refs}
}

// Batch resolves the rows of one upload against a single catalog snapshot
// and remembers earlier rows to catch duplicates inside the file.
type Batch struct {
	resolver *Resolver
	catalog  *refentity.Catalog
	seen     map[string][]seenRow
}

type seenRow struct {
	number int
	period Period
}

func (r *Resolver) NewBatch(ctx context.Context) (*Batch, error) {
	cat, err := r.refs.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference catalog: %w", err)
	}
	return &Batch{resolver: r, catalog: cat, seen: make(map[string][]seenRow)}, nil
}

// CheckDuplicateRate returns the oldest active rate on deps whose range
// overlaps p, or nil.
func (r *Resolver) CheckDuplicateRate(ctx context.Context, deps DependencyIDs, p Period) (*Rate, error) {
	existing, err := r.rates.FindOverlapping(ctx, deps, p)
	if err != nil || len(existing) == 0 {
		return nil, err
	}
	return &existing[0], nil
}

// Resolve returns the row's status with per-dependency candidates. Only
// storage failures are returned as errors.
func (b *Batch) Resolve(ctx context.Context, rowNumber int, rate ValidatedRate) (ResolutionResult, error) {
	res := ResolutionResult{Status: StatusOK}
	var ids DependencyIDs
	allResolved := true

	for _, kind := range refentity.Dependencies() {
		dm := b.matchDependency(kind, rate)
		if dm.ResolvedID > 0 {
			ids.Set(kind, dm.ResolvedID)
		} else {
			allResolved = false
		}
		if dm.Ambiguous {
			res.Messages = append(res.Messages, similarMessage(dm))
		}
		res.Dependencies = append(res.Dependencies, dm)
	}

	// A tuple with a dependency that does not exist yet cannot match a
	// stored rate.
	if allResolved {
		conflict, err := b.resolver.CheckDuplicateRate(ctx, ids, rate.Period())
		if err != nil {
			return ResolutionResult{}, err
		}
		if conflict != nil {
			res.ConflictingRateID = conflict.ID
			res.Messages = append([]string{constants.FormatError(constants.MsgDuplicateRate,
				conflict.ID, conflict.EffectiveFrom, conflict.EffectiveTo)}, res.Messages...)
		}
	}

	key := tupleKey(rate)
	if res.ConflictingRateID == 0 {
		for _, prev := range b.seen[key] {
			if prev.period.Overlaps(rate.Period()) {
				res.ConflictingRow = prev.number
				res.Messages = append([]string{constants.FormatError(constants.MsgDuplicateInUpload,
					prev.number, prev.period.From, prev.period.To)}, res.Messages...)
				break
			}
		}
	}
	b.seen[key] = append(b.seen[key], seenRow{number: rowNumber, period: rate.Period()})

	switch {
	case res.ConflictingRateID > 0 || res.ConflictingRow > 0:
		res.Status = StatusDuplicate
	case hasAmbiguous(res.Dependencies):
		res.Status = StatusWarning
	}
	return res, nil
}

func (b *Batch) matchDependency(kind refentity.Kind, rate ValidatedRate) DependencyMatch {
	fields := rate.DependencyFields(kind)
	dm := DependencyMatch{Kind: kind, Input: fields.Name}

	if kind == refentity.Publication {
		if e := b.catalog.Lookup(kind, fields.Code); e != nil {
			dm.ResolvedID = e.ID
			dm.Candidates = []similarity.Match{{EntityID: e.ID, EntityName: e.Name, Score: 100, MatchType: similarity.MatchExact}}
			return dm
		}
		// The code is new, so even an identical name belongs to another
		// publication and needs an operator decision.
		matches := b.catalog.FindSimilar(kind, fields.Name)
		for i := range matches {
			matches[i].MatchType = similarity.MatchSimilar
		}
		dm.Candidates = matches
		dm.Ambiguous = len(matches) > 0
		return dm
	}

	matches := b.catalog.FindSimilar(kind, fields.Name)
	dm.Candidates = matches
	switch {
	case len(matches) == 0:
	case matches[0].Exact():
		dm.ResolvedID = matches[0].EntityID
	default:
		dm.Ambiguous = true
	}
	return dm
}

func similarMessage(dm DependencyMatch) string {
	parts := make([]string, len(dm.Candidates))
	for i, c := range dm.Candidates {
		parts[i] = constants.FormatError(constants.MsgSimilarCandidate, c.EntityName, c.Score)
	}
	return constants.FormatError(constants.MsgSimilarDependency, dm.Kind.Label(), dm.Input, strings.Join(parts, ", "))
}

func hasAmbiguous(deps []DependencyMatch) bool {
	for _, d := range deps {
		if d.Ambiguous {
			return true
		}
	}
	return false
}

// tupleKey identifies the dependency tuple by its normalized inputs.
func tupleKey(rate ValidatedRate) string {
	return strings.Join([]string{
		similarity.Normalize(rate.PublicationCode),
		similarity.Normalize(rate.AdCategory),
		similarity.Normalize(rate.AdSize),
		similarity.Normalize(rate.PagePosition),
		similarity.Normalize(rate.ColorType),
	}, "|")
}
