package ledger

import (
	"time"
)

// Entity is any record held by the entity store: an Account, AssetHolding,
// CustodyReceipt, TrustRecord or DigitalToken.
type Entity interface {
	// EntityID returns the stable identifier the store keys the record by.
	EntityID() string
	// cloneEntity returns an independent copy so that callers can never
	// mutate stored state through a returned record.
	cloneEntity() Entity
}

// AccountStatus is the lifecycle state of an Account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

// Account holds a customer balance in a single, immutable currency.
// At every committed state the balance is ≥ 0.
type Account struct {
	ID        string        `json:"id"`
	Owner     string        `json:"owner"`
	Currency  string        `json:"currency"`
	Balance   Money         `json:"balance"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

func (a Account) EntityID() string    { return a.ID }
func (a Account) cloneEntity() Entity { return a }

// AssetClass categorizes an AssetHolding.
type AssetClass string

const (
	ClassEquity        AssetClass = "equity"
	ClassBond          AssetClass = "bond"
	ClassRealEstate    AssetClass = "real_estate"
	ClassCrypto        AssetClass = "crypto"
	ClassPreciousMetal AssetClass = "precious_metal"
	ClassCommodity     AssetClass = "commodity"
)

// ValidAssetClass reports whether c is one of the supported asset classes.
func ValidAssetClass(c AssetClass) bool {
	switch c {
	case ClassEquity, ClassBond, ClassRealEstate, ClassCrypto, ClassPreciousMetal, ClassCommodity:
		return true
	}
	return false
}

// AssetHolding is a position in a non-cash asset. Quantity is nil for
// non-fungible assets (a building, a single bar); when present it is never
// negative at a committed state.
type AssetHolding struct {
	ID        string     `json:"id"`
	Owner     string     `json:"owner"`
	Class     AssetClass `json:"class"`
	Quantity  *Quantity  `json:"quantity,omitempty"`
	Valuation Money      `json:"valuation"`
	ValuedAt  time.Time  `json:"valued_at"`
}

func (h AssetHolding) EntityID() string { return h.ID }

func (h AssetHolding) cloneEntity() Entity {
	if h.Quantity != nil {
		q := *h.Quantity
		h.Quantity = &q
	}
	return h
}

// ReceiptStatus is the lifecycle state of a CustodyReceipt.
type ReceiptStatus string

const (
	ReceiptActive   ReceiptStatus = "active"
	ReceiptRedeemed ReceiptStatus = "redeemed"
)

// CustodyReceipt proves possession of an asset holding on behalf of its
// owner. A receipt references exactly one holding; once redeemed it is
// immutable and a new receipt must be issued instead.
type CustodyReceipt struct {
	ID       string        `json:"id"`
	Number   string        `json:"number"` // unique, human-referenceable, "SKR-" prefixed
	Holding  string        `json:"holding"`
	Owner    string        `json:"owner"`
	IssuedAt time.Time     `json:"issued_at"`
	Status   ReceiptStatus `json:"status"`
}

func (r CustodyReceipt) EntityID() string    { return r.ID }
func (r CustodyReceipt) cloneEntity() Entity { return r }

// TrustStatus is the lifecycle state of a TrustRecord.
type TrustStatus string

const (
	TrustActive TrustStatus = "active"
	TrustClosed TrustStatus = "closed"
)

// TrustRecord behaves as a restricted account plus a set of owned holdings,
// managed for a beneficiary. Its invariants are the union of the Account and
// AssetHolding invariants.
type TrustRecord struct {
	ID          string          `json:"id"`
	Beneficiary string          `json:"beneficiary"`
	Type        string          `json:"type"`
	Holdings    map[string]bool `json:"holdings,omitempty"` // holding IDs owned by the trust
	Balance     Money           `json:"balance"`
	Status      TrustStatus     `json:"status"`
}

func (t TrustRecord) EntityID() string { return t.ID }

func (t TrustRecord) cloneEntity() Entity {
	if t.Holdings != nil {
		holdings := make(map[string]bool, len(t.Holdings))
		for id := range t.Holdings {
			holdings[id] = true
		}
		t.Holdings = holdings
	}
	return t
}

// TokenStatus is the lifecycle state of a DigitalToken.
type TokenStatus string

const (
	TokenMinted TokenStatus = "minted"
	TokenBurned TokenStatus = "burned"
)

// DigitalToken is the digital twin of an asset holding. At most one live
// (non-burned) token exists per holding.
type DigitalToken struct {
	ID        string      `json:"id"`
	Holding   string      `json:"holding"`
	Reference string      `json:"reference"` // unique, "TKN-" prefixed
	MintedAt  time.Time   `json:"minted_at"`
	Status    TokenStatus `json:"status"`
}

func (t DigitalToken) EntityID() string    { return t.ID }
func (t DigitalToken) cloneEntity() Entity { return t }
