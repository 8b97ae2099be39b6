// Package domain holds the static directory of execution domains and the
// deployment records the registry returns.
package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Domain is an execution environment, identified by its EVM chain id and
// its LayerZero messaging id.
type Domain struct {
	Name        string
	ChainID     uint64
	MessagingID uint16
	RPC         string
	Testnet     bool
}

func (d Domain) String() string {
	return fmt.Sprintf("%s(%d/lz%d)", d.Name, d.ChainID, d.MessagingID)
}

// WithRPC returns a copy of d pointing at another endpoint.
func (d Domain) WithRPC(endpoint string) Domain {
	d.RPC = endpoint
	return d
}

var directory = []Domain{
	{Name: "ethereum", ChainID: 1, MessagingID: 101, RPC: "https://eth.llamarpc.com"},
	{Name: "bnb", ChainID: 56, MessagingID: 102, RPC: "https://bsc-dataseed.binance.org"},
	{Name: "avalanche", ChainID: 43114, MessagingID: 106, RPC: "https://api.avax.network/ext/bc/C/rpc"},
	{Name: "polygon", ChainID: 137, MessagingID: 109, RPC: "https://polygon-rpc.com"},
	{Name: "arbitrum", ChainID: 42161, MessagingID: 110, RPC: "https://arb1.arbitrum.io/rpc"},
	{Name: "optimism", ChainID: 10, MessagingID: 111, RPC: "https://mainnet.optimism.io"},
	{Name: "fantom", ChainID: 250, MessagingID: 112, RPC: "https://rpc.ftm.tools"},
	{Name: "goerli", ChainID: 5, MessagingID: 10121, RPC: "https://rpc.ankr.com/eth_goerli", Testnet: true},
	{Name: "bnb_testnet", ChainID: 97, MessagingID: 10102, RPC: "https://data-seed-prebsc-1-s1.binance.org:8545", Testnet: true},
	{Name: "fuji_avalanche", ChainID: 43113, MessagingID: 10106, RPC: "https://api.avax-test.network/ext/bc/C/rpc", Testnet: true},
	{Name: "mumbai", ChainID: 80001, MessagingID: 10109, RPC: "https://rpc-mumbai.maticvigil.com", Testnet: true},
	{Name: "fantom_testnet", ChainID: 4002, MessagingID: 10112, RPC: "https://rpc.testnet.fantom.network", Testnet: true},
	{Name: "optimism_goerli", ChainID: 420, MessagingID: 10132, RPC: "https://goerli.optimism.io", Testnet: true},
	{Name: "arbitrum_goerli", ChainID: 421613, MessagingID: 10143, RPC: "https://goerli-rollup.arbitrum.io/rpc", Testnet: true},
}

var (
	byChainID = make(map[uint64]Domain, len(directory))
	byName    = make(map[string]Domain, len(directory))
)

func init() {
	for _, d := range directory {
		byChainID[d.ChainID] = d
		byName[d.Name] = d
	}
}

// ByChainID looks a domain up by its EVM chain id.
func ByChainID(id uint64) (Domain, bool) {
	d, ok := byChainID[id]
	return d, ok
}

// ByName looks a domain up by its directory name, case-insensitively.
func ByName(name string) (Domain, bool) {
	d, ok := byName[strings.ToLower(name)]
	return d, ok
}

// Lookup accepts either a directory name or a decimal chain id.
func Lookup(ref string) (Domain, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		if d, ok := ByChainID(id); ok {
			return d, nil
		}
		return Domain{}, fmt.Errorf("domain with chain id %d not supported", id)
	}
	if d, ok := ByName(ref); ok {
		return d, nil
	}
	return Domain{}, fmt.Errorf("domain %q not supported", ref)
}

// All returns the directory ordered by chain id.
func All() []Domain {
	list := make([]Domain, len(directory))
	copy(list, directory)
	sort.Slice(list, func(i, j int) bool { return list[i].ChainID < list[j].ChainID })
	return list
}
