// Copyright 2020 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package config

import (
	"fmt"
)

const DefaultGasPrice = 20000000000
const DefaultMaxGasPrice = 500000000000
const DefaultGasMultiplier = 1.1
const DefaultBlockConfirmations = 1

type OpsConfig struct {
	MaxGasPrice        uint64  `json:"maxGasPrice"`
	GasMultiplier      float64 `json:"gasMultiplier"`
	GasLimit           uint64  `json:"gasLimit"` // estimated per transaction when zero
	BlockConfirmations int64   `json:"blockConfirmations"`
}

func (c *OpsConfig) Validate() error {
	if c.GasMultiplier < 0 {
		return fmt.Errorf("gas multiplier %v is negative", c.GasMultiplier)
	}
	if c.BlockConfirmations < 0 {
		return fmt.Errorf("block confirmations %v is negative", c.BlockConfirmations)
	}
	return nil
}

func (c *OpsConfig) ParseConfig() (*OpsConfig, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	config := &OpsConfig{}

	config.GasLimit = c.GasLimit

	if c.MaxGasPrice != 0 {
		config.MaxGasPrice = c.MaxGasPrice
	} else {
		config.MaxGasPrice = DefaultMaxGasPrice
	}

	if c.GasMultiplier != 0 {
		config.GasMultiplier = c.GasMultiplier
	} else {
		config.GasMultiplier = DefaultGasMultiplier
	}

	if c.BlockConfirmations != 0 {
		config.BlockConfirmations = c.BlockConfirmations
	} else {
		config.BlockConfirmations = DefaultBlockConfirmations
	}

	return config, nil
}
