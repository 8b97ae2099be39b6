package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
	"github.com/elastos/Elastos.ELA.CrossBorrow/registry"
)

var projects = config.RegistryConfig{
	WrapperProject: config.DefaultWrapperProject,
	StableProject:  config.DefaultStableProject,
	LocalProject:   config.DefaultLocalProject,
}

func dep(project string, chainID uint64, name, addr string, meta map[string]interface{}) domain.Deployment {
	return domain.Deployment{Name: name, Address: common.HexToAddress(addr), Meta: meta, Project: project, Tag: "v1", ChainID: chainID}
}

func newRegistry(t *testing.T, deps ...domain.Deployment) registry.Registry {
	db, err := registry.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, d := range deps {
		require.NoError(t, db.Put(d))
	}
	return db
}

func fullRegistry(t *testing.T, markets ...string) registry.Registry {
	deps := []domain.Deployment{
		dep("tapiocaz", 1, "TapiocaOFT-WETH", "0xa1", map[string]interface{}{domain.MetaToftHost: true}),
		dep("tapiocaz", 1, "TapiocaOFT-USDC", "0xa2", map[string]interface{}{domain.MetaToftHost: false}),
		dep("tapioca-bar", 421613, "USDO", "0xb1", nil),
		dep("tapioca-bar", 421613, "MarketsHelper", "0xb2", nil),
		dep("tapioca-bar", 421613, "Penrose", "0xb3", nil),
	}
	for i, m := range markets {
		deps = append(deps, dep("tapioca-bar", 421613, m, fmt.Sprintf("0xc%d", i), nil))
	}
	return newRegistry(t, deps...)
}

func TestPredicates(t *testing.T) {
	d := dep("p", 1, "Singularity-TapiocaOFT-WETH", "0x1", map[string]interface{}{"isToftHost": true, "odd": "yes"})
	assert.True(t, NameEquals("singularity-tapiocaoft-weth")(d))
	assert.False(t, NameEquals("singularity")(d))
	assert.True(t, NameContains("SINGULARITY", "tapiocaoft-weth")(d))
	assert.False(t, NameContains("singularity", "usdc")(d))
	assert.True(t, MetaFlag(domain.MetaToftHost)(d))
	assert.False(t, MetaFlag("odd")(d))
	assert.False(t, And(NameContains("singularity"), MetaFlag("odd"))(d))
	assert.True(t, And()(d))
}

func TestOneCardinality(t *testing.T) {
	reg := newRegistry(t,
		dep("tapioca-bar", 5, "SingularityA", "0x01", nil),
		dep("tapioca-bar", 5, "SingularityB", "0x02", nil),
		dep("tapioca-bar", 5, "USDO", "0x03", nil),
	)
	ctx := context.Background()
	called := false
	chooser := func(kind string, candidates []domain.Deployment) (int, error) {
		called = true
		assert.Equal(t, KindMarket, kind)
		return 1, nil
	}
	r := New(reg, chooser, projects)

	_, err := r.One(ctx, Query{Kind: KindMarketHelper, Tag: "v1", ChainID: 5, Project: "tapioca-bar", Match: NameEquals("marketshelper")})
	var notFound *bridgeerr.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, uint64(5), notFound.DomainID)

	usdo, err := r.One(ctx, Query{Kind: KindStableAsset, Tag: "v1", ChainID: 5, Project: "tapioca-bar", Match: NameEquals("usdo")})
	require.NoError(t, err)
	assert.Equal(t, "USDO", usdo.Name)
	assert.False(t, called, "a single match never reaches the chooser")

	market, err := r.One(ctx, Query{Kind: KindMarket, Tag: "v1", ChainID: 5, Project: "tapioca-bar", Match: NameContains("singularity")})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "SingularityB", market.Name)

	_, err = New(reg, nil, projects).One(ctx, Query{Kind: KindMarket, Tag: "v1", ChainID: 5, Project: "tapioca-bar", Match: NameContains("singularity")})
	var ambiguous *bridgeerr.AmbiguousChoiceError
	require.True(t, errors.As(err, &ambiguous))
	assert.ElementsMatch(t, []string{"SingularityA", "SingularityB"}, ambiguous.Candidates)

	outOfRange := New(reg, func(string, []domain.Deployment) (int, error) { return 2, nil }, projects)
	_, err = outOfRange.One(ctx, Query{Kind: KindMarket, Tag: "v1", ChainID: 5, Project: "tapioca-bar", Match: NameContains("singularity")})
	assert.True(t, bridgeerr.IsAmbiguous(err))

	aborted := errors.New("aborted")
	refusing := New(reg, func(string, []domain.Deployment) (int, error) { return 0, aborted }, projects)
	_, err = refusing.One(ctx, Query{Kind: KindMarket, Tag: "v1", ChainID: 5, Project: "tapioca-bar", Match: NameContains("singularity")})
	assert.True(t, errors.Is(err, aborted))
}

func TestResolve(t *testing.T) {
	reg := fullRegistry(t, "Singularity-TapiocaOFT-WETH", "Singularity-TapiocaOFT-USDC")
	r := New(reg, nil, projects)
	origin, _ := domain.ByChainID(1)
	destination, _ := domain.ByChainID(421613)

	res, err := r.Resolve(context.Background(), "v1", origin, destination)
	require.NoError(t, err)
	assert.Equal(t, "TapiocaOFT-WETH", res.CollateralWrapper.Name)
	assert.Equal(t, common.HexToAddress("0xa1"), res.CollateralWrapper.Address)
	assert.Equal(t, "USDO", res.StableAsset.Name)
	assert.Equal(t, "Singularity-TapiocaOFT-WETH", res.Market.Name)
	assert.Equal(t, common.HexToAddress("0xb2"), res.MarketHelper.Address)
	assert.Equal(t, destination, res.Destination)

	penrose, err := r.Penrose(context.Background(), "v1", 421613)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xb3"), penrose.Address)
}

func TestResolveFailures(t *testing.T) {
	origin, _ := domain.ByChainID(1)
	destination, _ := domain.ByChainID(421613)
	ctx := context.Background()

	_, err := New(fullRegistry(t), nil, projects).Resolve(ctx, "v1", origin, origin)
	assert.True(t, bridgeerr.IsInconsistent(err))

	_, err = New(fullRegistry(t), nil, projects).Resolve(ctx, "v1", origin, destination)
	var notFound *bridgeerr.NotFoundError
	require.True(t, errors.As(err, &notFound), "no market for the wrapper")
	assert.Equal(t, KindMarket, notFound.Kind)

	_, err = New(fullRegistry(t, "Singularity-TapiocaOFT-WETH"), nil, projects).Resolve(ctx, "v2", origin, destination)
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, KindCollateralWrapper, notFound.Kind)
}

func TestOneSameNameNeedsChoice(t *testing.T) {
	reg := newRegistry(t,
		dep("tapioca-bar", 421613, "Singularity-TapiocaOFT-WETH", "0xa1", nil),
		dep("tapioca-bar", 421613, "Singularity-TapiocaOFT-WETH", "0xa2", nil),
	)
	q := Query{Kind: KindMarket, Tag: "v1", ChainID: 421613, Project: "tapioca-bar", Match: NameEquals("singularity-tapiocaoft-weth")}

	_, err := New(reg, nil, projects).One(context.Background(), q)
	assert.True(t, bridgeerr.IsAmbiguous(err))

	var seen int
	chooser := func(kind string, candidates []domain.Deployment) (int, error) {
		seen = len(candidates)
		return 0, nil
	}
	market, err := New(reg, chooser, projects).One(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
	assert.Equal(t, "Singularity-TapiocaOFT-WETH", market.Name)
}
