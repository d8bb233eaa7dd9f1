package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Kind is a typed string identifying a transaction kind.
type Kind string

// Transaction kinds accepted by Engine.Submit, plus the internal "provision"
// kind used for account and trust provisioning records.
const (
	KindTransfer      Kind = "transfer"
	KindDeposit       Kind = "deposit"
	KindWithdrawal    Kind = "withdrawal"
	KindCustodyIssue  Kind = "custody_issue"
	KindCustodyRedeem Kind = "custody_redeem"
	KindTokenize      Kind = "tokenize"
	KindBurnToken     Kind = "burn_token"
	KindTrustAllocate Kind = "trust_allocate"
	KindRevalue       Kind = "revalue"
	KindProvision     Kind = "provision"
)

// Status is the state of a transaction in its lifecycle. Committed and
// Rejected are terminal: a transaction never transitions out of them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
)

// Effect is the post-commit snapshot of one entity touched by a transaction.
// Replay re-applies effects in recorded order, which is what makes the entity
// store reproducible from the log alone.
type Effect struct {
	Entity Entity
}

// Transaction is the recorded outcome of a request. Once its status is
// terminal the record is immutable.
type Transaction struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"` // caller-supplied idempotency key
	Kind        Kind       `json:"kind"`
	Caller      string     `json:"caller,omitempty"`
	Touched     []string   `json:"touched,omitempty"` // entity ids the request referenced
	Effects     []Effect   `json:"effects,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"` // nil until committed
	Status      Status     `json:"status"`
	Reason      Reason     `json:"reason,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// EntityIDs returns the ids of all entities this transaction touched: the
// ids the request referenced plus the ids of its effects. A transaction that
// only read an entity (a mint reads its holding) still counts as touching
// it, so the audit index covers it.
func (t Transaction) EntityIDs() []string {
	ids := slices.Clone(t.Touched)
	for _, e := range t.Effects {
		ids = append(ids, e.Entity.EntityID())
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Request is a tagged transaction request variant, one type per kind. A
// request declares the entity ids it may touch (the lock set) and stages its
// effects against a snapshot of the store.
type Request interface {
	Kind() Kind
	// Key returns the caller-supplied idempotency key.
	Key() string
	// Caller returns the authenticated caller identity, or "" for a
	// trusted internal caller.
	Caller() string
	// lockSet returns every entity id the request may read or write.
	lockSet() []string
	// stage validates the request against the staging snapshot and
	// records its effects. Returning a validation-kind error rejects the
	// whole transaction; no partial effect is ever observable.
	stage(s *staging) error
}

type baseReq struct {
	IdemKey  string
	CallerID string
}

func (r baseReq) Key() string    { return r.IdemKey }
func (r baseReq) Caller() string { return r.CallerID }

// ownedBy rejects with ErrNotOwner when the caller identity is set and does
// not match the recorded owner. An empty caller is a trusted internal caller.
func (r baseReq) ownedBy(owner string) error {
	if r.CallerID != "" && r.CallerID != owner {
		return fmt.Errorf("%w: %q is not %q", ErrNotOwner, r.CallerID, owner)
	}
	return nil
}

// Deposit credits an active account with a positive amount in its currency.
type Deposit struct {
	baseReq
	Account string
	Amount  Money
}

// NewDeposit creates a new Deposit request.
func NewDeposit(key, caller, account string, amount Money) Deposit {
	return Deposit{baseReq: baseReq{IdemKey: key, CallerID: caller}, Account: account, Amount: amount}
}

func (r Deposit) Kind() Kind        { return KindDeposit }
func (r Deposit) lockSet() []string { return []string{r.Account} }

func (r Deposit) stage(s *staging) error {
	acc, err := s.activeAccount(r.Account)
	if err != nil {
		return err
	}
	if err := checkAmount(r.Amount, acc.Currency); err != nil {
		return err
	}
	acc.Balance, err = acc.Balance.Add(r.Amount)
	if err != nil {
		return err
	}
	s.put(acc)
	return nil
}

// Withdrawal debits an active account owned by the caller.
type Withdrawal struct {
	baseReq
	Account string
	Amount  Money
}

// NewWithdrawal creates a new Withdrawal request.
func NewWithdrawal(key, caller, account string, amount Money) Withdrawal {
	return Withdrawal{baseReq: baseReq{IdemKey: key, CallerID: caller}, Account: account, Amount: amount}
}

func (r Withdrawal) Kind() Kind        { return KindWithdrawal }
func (r Withdrawal) lockSet() []string { return []string{r.Account} }

func (r Withdrawal) stage(s *staging) error {
	acc, err := s.activeAccount(r.Account)
	if err != nil {
		return err
	}
	if err := r.ownedBy(acc.Owner); err != nil {
		return err
	}
	if err := checkAmount(r.Amount, acc.Currency); err != nil {
		return err
	}
	if acc.Balance.value.LessThan(r.Amount.value) {
		return fmt.Errorf("%w: account %s holds %s, requested %s", ErrInsufficientFunds, acc.ID, acc.Balance, r.Amount)
	}
	acc.Balance, err = acc.Balance.Sub(r.Amount)
	if err != nil {
		return err
	}
	s.put(acc)
	return nil
}

// Transfer moves an amount between two active accounts of the same currency.
// The caller must own the source account.
type Transfer struct {
	baseReq
	From   string
	To     string
	Amount Money
}

// NewTransfer creates a new Transfer request.
func NewTransfer(key, caller, from, to string, amount Money) Transfer {
	return Transfer{baseReq: baseReq{IdemKey: key, CallerID: caller}, From: from, To: to, Amount: amount}
}

func (r Transfer) Kind() Kind        { return KindTransfer }
func (r Transfer) lockSet() []string { return []string{r.From, r.To} }

func (r Transfer) stage(s *staging) error {
	if r.From == r.To {
		return fmt.Errorf("%w: transfer from an account to itself", ErrInvalidState)
	}
	src, err := s.activeAccount(r.From)
	if err != nil {
		return err
	}
	if err := r.ownedBy(src.Owner); err != nil {
		return err
	}
	dst, err := s.activeAccount(r.To)
	if err != nil {
		return err
	}
	if err := checkAmount(r.Amount, src.Currency); err != nil {
		return err
	}
	if dst.Currency != src.Currency {
		return fmt.Errorf("%w: %s account cannot receive %s", ErrCurrencyMismatch, dst.Currency, src.Currency)
	}
	if src.Balance.value.LessThan(r.Amount.value) {
		return fmt.Errorf("%w: account %s holds %s, requested %s", ErrInsufficientFunds, src.ID, src.Balance, r.Amount)
	}
	if src.Balance, err = src.Balance.Sub(r.Amount); err != nil {
		return err
	}
	if dst.Balance, err = dst.Balance.Add(r.Amount); err != nil {
		return err
	}
	s.put(src)
	s.put(dst)
	return nil
}

// CustodyIssue issues a safe keeping receipt for an asset holding. When
// NewHolding is set the holding is created in the same transaction ("secure
// custody"), so the atomicity guarantee covers the composite operation.
type CustodyIssue struct {
	baseReq
	Holding    string
	NewHolding *AssetHolding
}

// NewCustodyIssue creates a receipt issuance request for an existing holding.
func NewCustodyIssue(key, caller, holding string) CustodyIssue {
	return CustodyIssue{baseReq: baseReq{IdemKey: key, CallerID: caller}, Holding: holding}
}

// NewSecureCustody creates the composite request: register the holding if it
// is absent, then issue a receipt for it.
func NewSecureCustody(key, caller string, holding AssetHolding) CustodyIssue {
	return CustodyIssue{baseReq: baseReq{IdemKey: key, CallerID: caller}, Holding: holding.ID, NewHolding: &holding}
}

func (r CustodyIssue) Kind() Kind        { return KindCustodyIssue }
func (r CustodyIssue) lockSet() []string { return []string{r.Holding} }

func (r CustodyIssue) stage(s *staging) error {
	h, err := s.holding(r.Holding)
	switch {
	case err == nil:
		if err := r.ownedBy(h.Owner); err != nil {
			return err
		}
	case errors.Is(err, ErrNotFound) && r.NewHolding != nil:
		h = *r.NewHolding
		if err := checkHolding(h); err != nil {
			return err
		}
		h.ValuedAt = s.now
		s.put(h)
	default:
		return err
	}
	active, err := s.activeReceiptFor(h.ID)
	if err != nil {
		return err
	}
	if active != nil {
		return fmt.Errorf("%w: holding %s is covered by receipt %s", ErrCustodyHeld, h.ID, active.Number)
	}
	number, err := s.allocateReceiptNumber()
	if err != nil {
		return err
	}
	s.put(CustodyReceipt{
		ID:       s.newID(),
		Number:   number,
		Holding:  h.ID,
		Owner:    h.Owner,
		IssuedAt: s.now,
		Status:   ReceiptActive,
	})
	return nil
}

// CustodyRedeem redeems an active receipt owned by the caller. The holding
// itself is not deleted; a redeemed receipt is immutable end-of-life.
type CustodyRedeem struct {
	baseReq
	Receipt string
}

// NewCustodyRedeem creates a new CustodyRedeem request.
func NewCustodyRedeem(key, caller, receipt string) CustodyRedeem {
	return CustodyRedeem{baseReq: baseReq{IdemKey: key, CallerID: caller}, Receipt: receipt}
}

func (r CustodyRedeem) Kind() Kind        { return KindCustodyRedeem }
func (r CustodyRedeem) lockSet() []string { return []string{r.Receipt} }

func (r CustodyRedeem) stage(s *staging) error {
	rec, err := s.receipt(r.Receipt)
	if err != nil {
		return err
	}
	if rec.Status != ReceiptActive {
		return fmt.Errorf("%w: receipt %s is %s", ErrInvalidState, rec.Number, rec.Status)
	}
	if err := r.ownedBy(rec.Owner); err != nil {
		return err
	}
	rec.Status = ReceiptRedeemed
	s.put(rec)
	return nil
}

// Tokenize mints a digital token for a holding that has no live token.
type Tokenize struct {
	baseReq
	Holding string
}

// NewTokenize creates a new Tokenize request.
func NewTokenize(key, caller, holding string) Tokenize {
	return Tokenize{baseReq: baseReq{IdemKey: key, CallerID: caller}, Holding: holding}
}

func (r Tokenize) Kind() Kind        { return KindTokenize }
func (r Tokenize) lockSet() []string { return []string{r.Holding} }

func (r Tokenize) stage(s *staging) error {
	h, err := s.holding(r.Holding)
	if err != nil {
		return err
	}
	live, err := s.liveTokenFor(h.ID)
	if err != nil {
		return err
	}
	if live != nil {
		return fmt.Errorf("%w: holding %s is referenced by token %s", ErrAlreadyTokenized, h.ID, live.Reference)
	}
	ref, err := s.allocateTokenReference()
	if err != nil {
		return err
	}
	s.put(DigitalToken{
		ID:        s.newID(),
		Holding:   h.ID,
		Reference: ref,
		MintedAt:  s.now,
		Status:    TokenMinted,
	})
	return nil
}

// BurnToken burns a minted digital token.
type BurnToken struct {
	baseReq
	Token string
}

// NewBurnToken creates a new BurnToken request.
func NewBurnToken(key, caller, token string) BurnToken {
	return BurnToken{baseReq: baseReq{IdemKey: key, CallerID: caller}, Token: token}
}

func (r BurnToken) Kind() Kind        { return KindBurnToken }
func (r BurnToken) lockSet() []string { return []string{r.Token} }

func (r BurnToken) stage(s *staging) error {
	tok, err := s.token(r.Token)
	if err != nil {
		return err
	}
	if tok.Status != TokenMinted {
		return fmt.Errorf("%w: token %s is %s", ErrInvalidState, tok.Reference, tok.Status)
	}
	tok.Status = TokenBurned
	s.put(tok)
	return nil
}

// TrustAllocate funds a trust from an account owned by the caller and may
// attach holdings of the trust's beneficiary to the trust.
type TrustAllocate struct {
	baseReq
	Trust    string
	From     string
	Amount   Money
	Holdings []string
}

// NewTrustAllocate creates a new TrustAllocate request.
func NewTrustAllocate(key, caller, trust, from string, amount Money, holdings ...string) TrustAllocate {
	return TrustAllocate{baseReq: baseReq{IdemKey: key, CallerID: caller}, Trust: trust, From: from, Amount: amount, Holdings: holdings}
}

func (r TrustAllocate) Kind() Kind { return KindTrustAllocate }

func (r TrustAllocate) lockSet() []string {
	ids := []string{r.Trust}
	if r.From != "" {
		ids = append(ids, r.From)
	}
	return append(ids, r.Holdings...)
}

func (r TrustAllocate) stage(s *staging) error {
	trust, err := s.trust(r.Trust)
	if err != nil {
		return err
	}
	if trust.Status == TrustClosed {
		return fmt.Errorf("%w: trust %s is closed", ErrInvalidState, trust.ID)
	}
	if r.Amount.IsZero() && len(r.Holdings) == 0 {
		return fmt.Errorf("%w: allocation without amount or holdings", ErrInvalidAmount)
	}
	if !r.Amount.IsZero() {
		src, err := s.activeAccount(r.From)
		if err != nil {
			return err
		}
		if err := r.ownedBy(src.Owner); err != nil {
			return err
		}
		if err := checkAmount(r.Amount, src.Currency); err != nil {
			return err
		}
		if trust.Balance.Currency() != "" && trust.Balance.Currency() != src.Currency {
			return fmt.Errorf("%w: trust holds %s, funded in %s", ErrCurrencyMismatch, trust.Balance.Currency(), src.Currency)
		}
		if src.Balance.value.LessThan(r.Amount.value) {
			return fmt.Errorf("%w: account %s holds %s, requested %s", ErrInsufficientFunds, src.ID, src.Balance, r.Amount)
		}
		if src.Balance, err = src.Balance.Sub(r.Amount); err != nil {
			return err
		}
		if trust.Balance, err = trust.Balance.Add(r.Amount); err != nil {
			return err
		}
		s.put(src)
	}
	for _, id := range r.Holdings {
		h, err := s.holding(id)
		if err != nil {
			return err
		}
		if h.Owner != trust.Beneficiary {
			return fmt.Errorf("%w: holding %s belongs to %q, not beneficiary %q", ErrNotOwner, h.ID, h.Owner, trust.Beneficiary)
		}
		if trust.Holdings == nil {
			trust.Holdings = make(map[string]bool)
		}
		trust.Holdings[h.ID] = true
	}
	s.put(trust)
	return nil
}

// Revalue records a new valuation for an asset holding, typically after a
// settlement or an investment moved funds against it.
type Revalue struct {
	baseReq
	Holding   string
	Valuation Money
}

// NewRevalue creates a new Revalue request.
func NewRevalue(key, caller, holding string, valuation Money) Revalue {
	return Revalue{baseReq: baseReq{IdemKey: key, CallerID: caller}, Holding: holding, Valuation: valuation}
}

func (r Revalue) Kind() Kind        { return KindRevalue }
func (r Revalue) lockSet() []string { return []string{r.Holding} }

func (r Revalue) stage(s *staging) error {
	h, err := s.holding(r.Holding)
	if err != nil {
		return err
	}
	if err := r.ownedBy(h.Owner); err != nil {
		return err
	}
	if err := checkAmount(r.Valuation, h.Valuation.Currency()); err != nil {
		return err
	}
	h.Valuation = r.Valuation
	h.ValuedAt = s.now
	s.put(h)
	return nil
}

// checkAmount rejects non-positive amounts and currency mismatches against
// the target entity's currency.
func checkAmount(amount Money, currency string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	if amount.Currency() != currency {
		return fmt.Errorf("%w: amount in %s, entity holds %s", ErrCurrencyMismatch, amount.Currency(), currency)
	}
	return nil
}

// checkHolding validates a holding created inline by a secure-custody
// request.
func checkHolding(h AssetHolding) error {
	if h.ID == "" || h.Owner == "" {
		return fmt.Errorf("%w: holding needs an id and an owner", ErrInvalidRequest)
	}
	if !ValidAssetClass(h.Class) {
		return fmt.Errorf("%w: unknown asset class %q", ErrInvalidRequest, h.Class)
	}
	if h.Quantity != nil && h.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity %s is negative", ErrInvalidAmount, h.Quantity)
	}
	if h.Valuation.IsNegative() {
		return fmt.Errorf("%w: valuation %s is negative", ErrInvalidAmount, h.Valuation)
	}
	return nil
}

// --- JSON encoding of records ---

// entityKind returns the tag used to round-trip an Effect's concrete type.
func entityKind(e Entity) string {
	switch e.(type) {
	case Account:
		return "account"
	case AssetHolding:
		return "holding"
	case CustodyReceipt:
		return "receipt"
	case TrustRecord:
		return "trust"
	case DigitalToken:
		return "token"
	default:
		return ""
	}
}

// MarshalJSON tags the effect with its entity kind.
func (e Effect) MarshalJSON() ([]byte, error) {
	kind := entityKind(e.Entity)
	if kind == "" {
		return nil, fmt.Errorf("effect holds unknown entity type %T", e.Entity)
	}
	var w jsonObjectWriter
	w.Append("kind", kind)
	w.Append("entity", e.Entity)
	return w.MarshalJSON()
}

// UnmarshalJSON implements the json.Unmarshaler interface for Effect.
func (e *Effect) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind   string          `json:"kind"`
		Entity json.RawMessage `json:"entity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entity, err := UnmarshalEntity(raw.Kind, raw.Entity)
	if err != nil {
		return err
	}
	e.Entity = entity
	return nil
}

// MarshalEntity encodes an entity with its kind tag, for storage backends
// that persist entities individually.
func MarshalEntity(e Entity) (kind string, data []byte, err error) {
	kind = entityKind(e)
	if kind == "" {
		return "", nil, fmt.Errorf("unknown entity type %T", e)
	}
	data, err = json.Marshal(e)
	return kind, data, err
}

// UnmarshalEntity decodes an entity from its kind tag and JSON record.
func UnmarshalEntity(kind string, data []byte) (Entity, error) {
	switch kind {
	case "account":
		var v Account
		return v, json.Unmarshal(data, &v)
	case "holding":
		var v AssetHolding
		return v, json.Unmarshal(data, &v)
	case "receipt":
		var v CustodyReceipt
		return v, json.Unmarshal(data, &v)
	case "trust":
		var v TrustRecord
		return v, json.Unmarshal(data, &v)
	case "token":
		var v DigitalToken
		return v, json.Unmarshal(data, &v)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}
