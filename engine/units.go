package engine

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// ParseEther converts a positive decimal amount of whole tokens to wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "amount %q", s)
	}
	if d.Sign() <= 0 {
		return nil, errors.Errorf("amount %q must be positive", s)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, errors.Errorf("amount %q has more than %d decimals", s, etherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as a decimal amount of whole tokens.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
