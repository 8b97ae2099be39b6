// Copyright 2021 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package evm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/elastos/Elastos.ELA.CrossBorrow/bridgelog"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/evmclient"
	"github.com/elastos/Elastos.ELA.CrossBorrow/chains/evm/listener"
	"github.com/elastos/Elastos.ELA.CrossBorrow/config"
	"github.com/elastos/Elastos.ELA.CrossBorrow/domain"
	"github.com/elastos/Elastos.ELA.CrossBorrow/sender"
)

// EVMChain is struct that aggregates all data required for one execution domain.
type EVMChain struct {
	domain   domain.Domain
	client   *evmclient.EVMClient
	listener *listener.ConfirmationListener
	config   *config.GeneralChainConfig
}

func NewEVMChain(d domain.Domain, client *evmclient.EVMClient, cfg *config.GeneralChainConfig) *EVMChain {
	return &EVMChain{
		domain:   d,
		client:   client,
		listener: listener.NewConfirmationListener(client, cfg.Opts.BlockConfirmations),
		config:   cfg,
	}
}

// SetupEVMChain dials the domain endpoint (the configured one when set) with
// the key held by s.
func SetupEVMChain(ctx context.Context, d domain.Domain, cfg *config.GeneralChainConfig, s sender.Sender) (*EVMChain, error) {
	if cfg.Endpoint != "" {
		d = d.WithRPC(cfg.Endpoint)
	}
	if d.RPC == "" {
		return nil, errors.Errorf("no rpc endpoint for domain %s", d)
	}
	client, err := evmclient.NewEVMClient(cfg, s)
	if err != nil {
		return nil, err
	}
	if err := client.Configurate(ctx, d.RPC); err != nil {
		return nil, errors.Wrapf(err, "connect %s", d)
	}
	bridgelog.Info("chain ready", "domain", d.Name, "chainId", d.ChainID, "from", s.Address())
	return NewEVMChain(d, client, cfg), nil
}

func (c *EVMChain) ChainID() uint64 {
	return c.domain.ChainID
}

func (c *EVMChain) Domain() domain.Domain {
	return c.domain
}

func (c *EVMChain) Client() *evmclient.EVMClient {
	return c.client
}

func (c *EVMChain) Listener() *listener.ConfirmationListener {
	return c.listener
}

func (c *EVMChain) Config() *config.GeneralChainConfig {
	return c.config
}

func (c *EVMChain) Close() {
	if c.client.Client != nil {
		c.client.Close()
	}
}
