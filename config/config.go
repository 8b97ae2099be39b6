// Copyright 2020 ChainSafe Systems
// SPDX-License-Identifier: LGPL-3.0-only

package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

const DefaultConfigPath = "./crossborrow.toml"
const DefaultKeystorePath = "./keystore"
const DefaultRegistryPath = "./deployments.json"

const (
	RegistryJSON    = "json"
	RegistryLevelDB = "leveldb"
)

const (
	DefaultWrapperProject = "tapiocaz"
	DefaultStableProject  = "tapioca-bar"
	DefaultLocalProject   = "tapioca-bar"
)

const (
	DefaultPermitName           = "Tapioca Singularity"
	DefaultPermitVersion        = "1"
	DefaultDeadlineOffset       = 18000000
	DefaultWithdrawGasLimit     = 200000
	DefaultAirdropGasLimit      = 1000000
	DefaultExtraGasLimit        = 1000000
	DefaultApproveConfirmations = 3
)

// DefaultFreeMintAmount is 100 * 10e18 wei.
var DefaultFreeMintAmount = new(big.Int).Mul(big.NewInt(100), new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)))

type Config struct {
	Origin      string               `json:"origin"`      // domain name or chain id
	Destination string               `json:"destination"` // domain name or chain id
	Tag         string               `json:"tag"`         // default release tag offered at the prompt
	Chains      []GeneralChainConfig `json:"chains"`
	Registry    RegistryConfig       `json:"registry"`
	Permit      PermitConfig         `json:"permit"`
	Messaging   MessagingConfig      `json:"messaging"`
	Collateral  CollateralConfig     `json:"collateral"`
}

type GeneralChainConfig struct {
	Name         string    `json:"name"`     // Human-readable chain name
	Id           uint64    `json:"id"`       // EVM chain id
	Endpoint     string    `json:"endpoint"` // url for rpc endpoint, domain default when empty
	From         string    `json:"from"`     // address of key to use
	KeystorePath string    `json:"keystorePath"`
	Insecure     bool      `json:"insecure"` // Indicated whether the test keyring should be used
	Opts         OpsConfig `json:"opts"`
}

type RegistryConfig struct {
	Kind           string `json:"kind"` // json or leveldb
	Path           string `json:"path"`
	WrapperProject string `json:"wrapperProject"`
	StableProject  string `json:"stableProject"`
	LocalProject   string `json:"localProject"`
}

type PermitConfig struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	DeadlineOffset uint64 `json:"deadlineOffset"` // seconds past the destination head
}

type MessagingConfig struct {
	WithdrawGasLimit  uint64 `json:"withdrawGasLimit"`
	AirdropGasLimit   uint64 `json:"airdropGasLimit"`
	ExtraGasLimit     uint64 `json:"extraGasLimit"`
	ZroPaymentAddress string `json:"zroPaymentAddress"`
}

type CollateralConfig struct {
	Wrap                 *bool  `json:"wrap"` // true when unset
	StrategyDeposit      bool   `json:"strategyDeposit"`
	EnsureAllowance      bool   `json:"ensureAllowance"`
	FreeMint             bool   `json:"freeMint"` // testnet faucet on the wrapped token
	FreeMintAmount       string `json:"freeMintAmount"`
	ApproveConfirmations int64  `json:"approveConfirmations"`
}

func (c *GeneralChainConfig) Validate() error {
	if c.Id == 0 {
		return fmt.Errorf("required field chain.Id empty for chain %s", c.Name)
	}
	if c.From == "" && !c.Insecure {
		return fmt.Errorf("required field chain.From empty for chain %v", c.Id)
	}
	if c.From != "" && !common.IsHexAddress(c.From) && !c.Insecure {
		return fmt.Errorf("chain.From %q is not an address for chain %v", c.From, c.Id)
	}
	return c.Opts.Validate()
}

func (c *GeneralChainConfig) ParseConfig() error {
	if c.KeystorePath == "" {
		c.KeystorePath = DefaultKeystorePath
	}
	opts, err := c.Opts.ParseConfig()
	if err != nil {
		return errors.Wrapf(err, "chain %v", c.Id)
	}
	c.Opts = *opts
	return nil
}

func (c *RegistryConfig) Validate() error {
	switch c.Kind {
	case RegistryJSON, RegistryLevelDB:
	default:
		return fmt.Errorf("unknown registry kind %q", c.Kind)
	}
	if c.Path == "" {
		return errors.New("required field registry.Path empty")
	}
	return nil
}

func (c *PermitConfig) Validate() error {
	if c.DeadlineOffset == 0 {
		return errors.New("permit deadline offset must be positive")
	}
	return nil
}

func (c *CollateralConfig) Validate() error {
	if c.FreeMint {
		if _, ok := new(big.Int).SetString(c.FreeMintAmount, 10); !ok {
			return fmt.Errorf("collateral.FreeMintAmount %q is not a decimal integer", c.FreeMintAmount)
		}
	}
	if c.ApproveConfirmations < 0 {
		return errors.New("collateral.ApproveConfirmations is negative")
	}
	return nil
}

// WrapCollateral reports whether the collateral is wrapped before deposit.
func (c *CollateralConfig) WrapCollateral() bool {
	return c.Wrap == nil || *c.Wrap
}

// FreeMintWei is the faucet amount in wei.
func (c *CollateralConfig) FreeMintWei() *big.Int {
	amount, ok := new(big.Int).SetString(c.FreeMintAmount, 10)
	if !ok {
		return new(big.Int).Set(DefaultFreeMintAmount)
	}
	return amount
}

func (c *MessagingConfig) Validate() error {
	if c.ZroPaymentAddress != "" && !common.IsHexAddress(c.ZroPaymentAddress) {
		return errors.Errorf("invalid zroPaymentAddress %q", c.ZroPaymentAddress)
	}
	return nil
}

// ZroPayment is the configured ZRO payment address, zero when unset.
func (c *MessagingConfig) ZroPayment() common.Address {
	return common.HexToAddress(c.ZroPaymentAddress)
}

func (c *Config) Validate() error {
	if c.Origin == "" {
		return errors.New("required field Origin empty")
	}
	if c.Destination == "" {
		return errors.New("required field Destination empty")
	}
	for i := range c.Chains {
		if err := c.Chains[i].Validate(); err != nil {
			return err
		}
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	if err := c.Permit.Validate(); err != nil {
		return err
	}
	if err := c.Messaging.Validate(); err != nil {
		return err
	}
	return c.Collateral.Validate()
}

// ParseConfig fills every unset field with its default.
func (c *Config) ParseConfig() error {
	for i := range c.Chains {
		if err := c.Chains[i].ParseConfig(); err != nil {
			return err
		}
	}
	if c.Registry.Kind == "" {
		c.Registry.Kind = RegistryJSON
	}
	if c.Registry.Path == "" {
		c.Registry.Path = DefaultRegistryPath
	}
	if c.Registry.WrapperProject == "" {
		c.Registry.WrapperProject = DefaultWrapperProject
	}
	if c.Registry.StableProject == "" {
		c.Registry.StableProject = DefaultStableProject
	}
	if c.Registry.LocalProject == "" {
		c.Registry.LocalProject = DefaultLocalProject
	}
	if c.Permit.Name == "" {
		c.Permit.Name = DefaultPermitName
	}
	if c.Permit.Version == "" {
		c.Permit.Version = DefaultPermitVersion
	}
	if c.Permit.DeadlineOffset == 0 {
		c.Permit.DeadlineOffset = DefaultDeadlineOffset
	}
	if c.Messaging.WithdrawGasLimit == 0 {
		c.Messaging.WithdrawGasLimit = DefaultWithdrawGasLimit
	}
	if c.Messaging.AirdropGasLimit == 0 {
		c.Messaging.AirdropGasLimit = DefaultAirdropGasLimit
	}
	if c.Messaging.ExtraGasLimit == 0 {
		c.Messaging.ExtraGasLimit = DefaultExtraGasLimit
	}
	if c.Collateral.FreeMintAmount == "" {
		c.Collateral.FreeMintAmount = DefaultFreeMintAmount.String()
	}
	if c.Collateral.ApproveConfirmations == 0 {
		c.Collateral.ApproveConfirmations = DefaultApproveConfirmations
	}
	return nil
}

// Chain returns the settings for chainID. When none is configured it returns
// a defaulted entry and false.
func (c *Config) Chain(chainID uint64) (GeneralChainConfig, bool) {
	for _, chain := range c.Chains {
		if chain.Id == chainID {
			return chain, true
		}
	}
	chain := GeneralChainConfig{Id: chainID}
	if err := chain.ParseConfig(); err != nil {
		log.Error("default chain config", "chain", chainID, "err", err)
	}
	return chain, false
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	var cfg Config
	if err := loadConfig(path, &cfg); err != nil {
		log.Warn("err loading config file", "err", err.Error())
		return nil, err
	}
	log.Debug("Loaded config", "path", path)
	if err := cfg.ParseConfig(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadConfig(file string, config *Config) error {
	ext := filepath.Ext(file)
	fp, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	log.Debug("Loading configuration", "path", filepath.Clean(fp))

	f, err := os.Open(filepath.Clean(fp))
	if err != nil {
		return err
	}
	defer f.Close()

	switch ext {
	case ".json":
		err = json.NewDecoder(f).Decode(config)
	case ".toml":
		err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(config)
		// Add file name to errors that have a line number.
		if _, ok := err.(*toml.LineError); ok {
			err = errors.New(file + ", " + err.Error())
		}
	default:
		return fmt.Errorf("unrecognized extention: %s", ext)
	}
	return err
}
