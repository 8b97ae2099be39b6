package permit

import "fmt"

// Kind selects the privilege an authorization grants and with it the
// typed-data schema that is signed.
type Kind uint8

const (
	// KindPermit lets the spender move the owner's market shares (lend side).
	KindPermit Kind = iota
	// KindPermitBorrow lets the spender borrow against the owner's collateral.
	KindPermitBorrow
)

// PrimaryType is the EIP-712 struct name of k, empty for unknown kinds.
func (k Kind) PrimaryType() string {
	switch k {
	case KindPermit:
		return "Permit"
	case KindPermitBorrow:
		return "PermitBorrow"
	}
	return ""
}

// IsBorrow is the permitBorrow flag of the on-chain approval struct.
func (k Kind) IsBorrow() bool {
	return k == KindPermitBorrow
}

func (k Kind) String() string {
	if t := k.PrimaryType(); t != "" {
		return t
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}
