package ledger

import (
	"context"
)

// CustodyService groups the custody and tokenization operations behind a
// single facade. It is a thin layer: every mutation goes through the engine
// as a regular transaction and inherits its atomicity, idempotency and
// locking guarantees.
type CustodyService struct {
	eng *Engine
}

// NewCustodyService creates a custody service over an engine.
func NewCustodyService(eng *Engine) *CustodyService {
	return &CustodyService{eng: eng}
}

// SecureCustody registers a holding and issues its first safe keeping
// receipt in one transaction. If anything fails the holding is not created.
func (c *CustodyService) SecureCustody(ctx context.Context, key, caller string, holding AssetHolding) (Transaction, error) {
	if holding.ID == "" {
		holding.ID = c.eng.newID()
	}
	return c.eng.Submit(ctx, NewSecureCustody(key, caller, holding))
}

// Issue issues a safe keeping receipt for an existing holding.
func (c *CustodyService) Issue(ctx context.Context, key, caller, holdingID string) (Transaction, error) {
	return c.eng.Submit(ctx, NewCustodyIssue(key, caller, holdingID))
}

// Redeem redeems an active receipt.
func (c *CustodyService) Redeem(ctx context.Context, key, caller, receiptID string) (Transaction, error) {
	return c.eng.Submit(ctx, NewCustodyRedeem(key, caller, receiptID))
}

// Tokenize mints a digital token for a holding.
func (c *CustodyService) Tokenize(ctx context.Context, key, caller, holdingID string) (Transaction, error) {
	return c.eng.Submit(ctx, NewTokenize(key, caller, holdingID))
}

// Burn burns a minted token.
func (c *CustodyService) Burn(ctx context.Context, key, caller, tokenID string) (Transaction, error) {
	return c.eng.Submit(ctx, NewBurnToken(key, caller, tokenID))
}

// ActiveReceipt returns the active receipt covering a holding, or ErrNotFound.
func (c *CustodyService) ActiveReceipt(ctx context.Context, holdingID string) (CustodyReceipt, error) {
	found, err := c.eng.store.List(ctx, func(e Entity) bool {
		r, ok := e.(CustodyReceipt)
		return ok && r.Holding == holdingID && r.Status == ReceiptActive
	})
	if err != nil {
		return CustodyReceipt{}, err
	}
	if len(found) == 0 {
		return CustodyReceipt{}, errNotFoundf("no active receipt for holding %q", holdingID)
	}
	return found[0].(CustodyReceipt), nil
}

// LiveToken returns the minted token referencing a holding, or ErrNotFound.
func (c *CustodyService) LiveToken(ctx context.Context, holdingID string) (DigitalToken, error) {
	found, err := c.eng.store.List(ctx, func(e Entity) bool {
		t, ok := e.(DigitalToken)
		return ok && t.Holding == holdingID && t.Status == TokenMinted
	})
	if err != nil {
		return DigitalToken{}, err
	}
	if len(found) == 0 {
		return DigitalToken{}, errNotFoundf("no live token for holding %q", holdingID)
	}
	return found[0].(DigitalToken), nil
}
