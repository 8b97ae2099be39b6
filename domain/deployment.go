package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MetaToftHost marks the collateral wrapper whose underlying token lives on
// the wrapper's own domain.
const MetaToftHost = "isToftHost"

// Deployment is one recorded contract instance.
type Deployment struct {
	Name    string                 `json:"name"`
	Address common.Address         `json:"address"`
	Meta    map[string]interface{} `json:"meta,omitempty"`

	Project string `json:"-"`
	Tag     string `json:"-"`
	ChainID uint64 `json:"-"`
}

// Flag reads a boolean metadata entry; absent or non-bool entries are false.
func (d Deployment) Flag(key string) bool {
	v, ok := d.Meta[key].(bool)
	return ok && v
}

// IsHost reports whether d is the canonical collateral wrapper of its domain.
func (d Deployment) IsHost() bool {
	return d.Flag(MetaToftHost)
}

// LowerName is the name used by case-insensitive predicates.
func (d Deployment) LowerName() string {
	return strings.ToLower(d.Name)
}
