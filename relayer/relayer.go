// Copyright 2021 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package relayer

import (
	"fmt"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgeerr"
	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgelog"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm"
)

// Relayer keeps the connected domains and routes an operation from its
// origin to its destination chain.
type Relayer struct {
	relayedChains []*evm.EVMChain
	registry      map[uint64]*evm.EVMChain
}

func NewRelayer(chains ...*evm.EVMChain) *Relayer {
	r := &Relayer{}
	for _, c := range chains {
		r.addRelayedChain(c)
	}
	return r
}

func (r *Relayer) addRelayedChain(c *evm.EVMChain) {
	if r.registry == nil {
		r.registry = make(map[uint64]*evm.EVMChain)
	}
	chainID := c.ChainID()
	if _, ok := r.registry[chainID]; ok {
		bridgelog.Warn("chain registered twice", "chainId", chainID)
		return
	}
	r.registry[chainID] = c
	r.relayedChains = append(r.relayedChains, c)
}

func (r *Relayer) Chain(chainID uint64) (*evm.EVMChain, error) {
	c, ok := r.registry[chainID]
	if !ok {
		return nil, &bridgeerr.NotFoundError{Kind: "chain", DomainID: chainID}
	}
	return c, nil
}

// Route returns the origin and destination chains of an operation. They must
// be distinct registered domains.
func (r *Relayer) Route(origin, destination uint64) (*evm.EVMChain, *evm.EVMChain, error) {
	if origin == destination {
		return nil, nil, bridgeerr.Inconsistent("route", "origin and destination are both %d", origin)
	}
	from, err := r.Chain(origin)
	if err != nil {
		return nil, nil, err
	}
	to, err := r.Chain(destination)
	if err != nil {
		return nil, nil, err
	}
	bridgelog.Debug(fmt.Sprintf("route %s -> %s", from.Domain(), to.Domain()))
	return from, to, nil
}

func (r *Relayer) Close() {
	for _, c := range r.relayedChains {
		c.Close()
	}
}
