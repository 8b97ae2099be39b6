// Package resolver turns registry records into the four contracts a
// cross-domain borrow talks to.
package resolver

import (
	"context"
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgelog"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
	"github.com/elastos/Elastos.ELA.CrossBorrow/registry"
)

const (
	KindCollateralWrapper = "TOFT"
	KindStableAsset       = "USDO"
	KindMarket            = "Singularity"
	KindMarketHelper      = "MarketsHelper"
	KindPenrose           = "Penrose"
)

// Predicate selects deployment records.
type Predicate func(d domain.Deployment) bool

// NameEquals matches the record name, ignoring case.
func NameEquals(name string) Predicate {
	name = strings.ToLower(name)
	return func(d domain.Deployment) bool {
		return d.LowerName() == name
	}
}

// NameContains matches records whose name holds every part, ignoring case.
func NameContains(parts ...string) Predicate {
	lowered := make([]string, len(parts))
	for i, p := range parts {
		lowered[i] = strings.ToLower(p)
	}
	return func(d domain.Deployment) bool {
		name := d.LowerName()
		for _, p := range lowered {
			if !strings.Contains(name, p) {
				return false
			}
		}
		return true
	}
}

// MetaFlag matches records whose boolean metadata key is true.
func MetaFlag(key string) Predicate {
	return func(d domain.Deployment) bool {
		return d.Flag(key)
	}
}

func And(ps ...Predicate) Predicate {
	return func(d domain.Deployment) bool {
		for _, p := range ps {
			if !p(d) {
				return false
			}
		}
		return true
	}
}

// Chooser picks one of several candidates, returning its index.
type Chooser func(kind string, candidates []domain.Deployment) (int, error)

type Query struct {
	Kind    string
	Tag     string
	ChainID uint64
	Project string
	Match   Predicate // nil matches everything
}

type Resolver struct {
	registry registry.Registry
	chooser  Chooser
	projects config.RegistryConfig
}

// New builds a resolver. chooser may be nil, in which case several matches
// fail with AmbiguousChoiceError.
func New(reg registry.Registry, chooser Chooser, projects config.RegistryConfig) *Resolver {
	return &Resolver{registry: reg, chooser: chooser, projects: projects}
}

// All returns the distinct records matching q, in registry order.
func (r *Resolver) All(ctx context.Context, q Query) ([]domain.Deployment, error) {
	records, err := r.registry.Lookup(ctx, q.Tag, q.ChainID, q.Project)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup %s on %d", q.Kind, q.ChainID)
	}
	seen := mapset.NewThreadUnsafeSet()
	var out []domain.Deployment
	for _, d := range records {
		if q.Match != nil && !q.Match(d) {
			continue
		}
		if !seen.Add(d.Name + "@" + d.Address.Hex()) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// One returns the single record matching q. Several matches are handed to the
// chooser; none is NotFoundError.
func (r *Resolver) One(ctx context.Context, q Query) (domain.Deployment, error) {
	candidates, err := r.All(ctx, q)
	if err != nil {
		return domain.Deployment{}, err
	}
	switch len(candidates) {
	case 0:
		return domain.Deployment{}, &bridgeerr.NotFoundError{Kind: q.Kind, DomainID: q.ChainID}
	case 1:
		return candidates[0], nil
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	ambiguous := &bridgeerr.AmbiguousChoiceError{Kind: q.Kind, DomainID: q.ChainID, Candidates: names}
	if r.chooser == nil {
		return domain.Deployment{}, ambiguous
	}
	idx, err := r.chooser(q.Kind, candidates)
	if err != nil {
		ambiguous.Err = err
		return domain.Deployment{}, ambiguous
	}
	if idx < 0 || idx >= len(candidates) {
		ambiguous.Err = errors.Errorf("choice %d out of range", idx)
		return domain.Deployment{}, ambiguous
	}
	return candidates[idx], nil
}

// Resolved is the set of contracts one operation uses.
type Resolved struct {
	Tag               string
	Origin            domain.Domain
	Destination       domain.Domain
	CollateralWrapper domain.Deployment // origin
	StableAsset       domain.Deployment // destination
	Market            domain.Deployment // destination
	MarketHelper      domain.Deployment // destination
}

// Resolve runs the fixed lookups of a borrow from origin to destination.
func (r *Resolver) Resolve(ctx context.Context, tag string, origin, destination domain.Domain) (*Resolved, error) {
	if origin.ChainID == destination.ChainID {
		return nil, bridgeerr.Inconsistent("domains", "origin and destination are both %s", origin)
	}
	res := &Resolved{Tag: tag, Origin: origin, Destination: destination}
	var err error

	res.CollateralWrapper, err = r.One(ctx, Query{
		Kind: KindCollateralWrapper, Tag: tag, ChainID: origin.ChainID,
		Project: r.projects.WrapperProject, Match: MetaFlag(domain.MetaToftHost),
	})
	if err != nil {
		return nil, err
	}
	res.StableAsset, err = r.One(ctx, Query{
		Kind: KindStableAsset, Tag: tag, ChainID: destination.ChainID,
		Project: r.projects.StableProject, Match: NameEquals("usdo"),
	})
	if err != nil {
		return nil, err
	}
	res.Market, err = r.One(ctx, Query{
		Kind: KindMarket, Tag: tag, ChainID: destination.ChainID,
		Project: r.projects.LocalProject, Match: NameContains("singularity", res.CollateralWrapper.Name),
	})
	if err != nil {
		return nil, err
	}
	res.MarketHelper, err = r.One(ctx, Query{
		Kind: KindMarketHelper, Tag: tag, ChainID: destination.ChainID,
		Project: r.projects.LocalProject, Match: NameEquals("marketshelper"),
	})
	if err != nil {
		return nil, err
	}
	bridgelog.Info("resolved deployments", "tag", tag,
		"toft", res.CollateralWrapper.Address.Hex(), "usdo", res.StableAsset.Address.Hex(),
		"market", res.Market.Name, "helper", res.MarketHelper.Address.Hex())
	return res, nil
}

// Penrose finds the market registry of chainID.
func (r *Resolver) Penrose(ctx context.Context, tag string, chainID uint64) (domain.Deployment, error) {
	return r.One(ctx, Query{
		Kind: KindPenrose, Tag: tag, ChainID: chainID,
		Project: r.projects.LocalProject, Match: NameEquals("penrose"),
	})
}
