package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopePool
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota

	// Pool sub-types (entity is the pool ID, except escrow which keys by loan ID)
	SubTypePoolLiquidity
	SubTypePoolStakeVault
	SubTypeLoanEscrow

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AssetID maps asset symbols to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDC": 1,
		"USDT": 2,
		"WSOL": 3,
	}
	idToAsset = map[AssetID]string{
		1: "USDC",
		2: "USDT",
		3: "WSOL",
	}
	assetDecimals = map[AssetID]int32{
		1: 6,
		2: 6,
		3: 9,
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// GetAssetDecimals returns the display exponent for an asset's base units
func GetAssetDecimals(id AssetID) (int32, bool) {
	d, ok := assetDecimals[id]
	return d, ok
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID: user ID, pool ID, or loan ID depending on scope/subtype
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for a user's liquid wallet
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewPoolAccountKey creates a key for one of a pool's internal accounts
func NewPoolAccountKey(poolID uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopePool,
		EntityID: poolID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewEscrowAccountKey creates the per-loan collateral escrow key.
// Escrow accounts are pool-scoped but keyed by loan ID so each loan's
// collateral is segregated until the loan resolves.
func NewEscrowAccountKey(loanID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopePool,
		EntityID: loanID,
		SubType:  SubTypeLoanEscrow,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopePool:
		eid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("pool:%s:%s:%s", eid.String(), k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath. Used when restoring
// balances from a snapshot.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")

	switch parts[0] {
	case "user", "pool":
		if len(parts) != 4 {
			return AccountKey{}, fmt.Errorf("malformed account path %q", path)
		}
		entityID, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		subType, ok := subTypeFromName(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown subtype %q", path, parts[2])
		}
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset %q", path, parts[3])
		}
		scope := AccountScopeUser
		if parts[0] == "pool" {
			scope = AccountScopePool
		}
		return AccountKey{Scope: scope, EntityID: entityID, SubType: subType, AssetID: assetID}, nil

	case "external":
		if len(parts) != 3 {
			return AccountKey{}, fmt.Errorf("malformed account path %q", path)
		}
		subType, ok := subTypeFromName(parts[1])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown subtype %q", path, parts[1])
		}
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset %q", path, parts[2])
		}
		return AccountKey{Scope: AccountScopeExternal, SubType: subType, AssetID: assetID}, nil

	default:
		return AccountKey{}, fmt.Errorf("account path %q: unknown scope %q", path, parts[0])
	}
}

func subTypeFromName(name string) (AccountSubType, bool) {
	switch name {
	case "wallet":
		return SubTypeWallet, true
	case "liquidity":
		return SubTypePoolLiquidity, true
	case "stake_vault":
		return SubTypePoolStakeVault, true
	case "escrow":
		return SubTypeLoanEscrow, true
	case "deposits":
		return SubTypeExternalDeposits, true
	case "withdrawals":
		return SubTypeExternalWithdrawals, true
	default:
		return 0, false
	}
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeWallet:
		return "wallet"
	case SubTypePoolLiquidity:
		return "liquidity"
	case SubTypePoolStakeVault:
		return "stake_vault"
	case SubTypeLoanEscrow:
		return "escrow"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
