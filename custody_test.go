package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestCustodyService(t *testing.T) {
	e := newTestEngine(t)
	svc := NewCustodyService(e)
	ctx := context.Background()

	tx, err := svc.SecureCustody(ctx, "secure-1", "alice", AssetHolding{Owner: "alice", Class: ClassPreciousMetal, Valuation: M(50000, "EUR")})
	if err != nil {
		t.Fatalf("SecureCustody: %v", err)
	}
	if tx.Status != StatusCommitted {
		t.Fatalf("SecureCustody = %s (%s)", tx.Status, tx.Message)
	}
	var holdingID string
	for _, eff := range tx.Effects {
		if h, ok := eff.Entity.(AssetHolding); ok {
			holdingID = h.ID
		}
	}
	if holdingID == "" {
		t.Fatal("no holding id generated")
	}

	receipt, err := svc.ActiveReceipt(ctx, holdingID)
	if err != nil {
		t.Fatalf("ActiveReceipt: %v", err)
	}

	if _, err := svc.LiveToken(ctx, holdingID); !errors.Is(err, ErrNotFound) {
		t.Errorf("LiveToken before mint err = %v, want ErrNotFound", err)
	}
	if tx, err = svc.Tokenize(ctx, "mint-1", "alice", holdingID); err != nil || tx.Status != StatusCommitted {
		t.Fatalf("Tokenize = %s, err %v", tx.Status, err)
	}
	token, err := svc.LiveToken(ctx, holdingID)
	if err != nil {
		t.Fatalf("LiveToken: %v", err)
	}

	if tx, err = svc.Burn(ctx, "burn-1", "alice", token.ID); err != nil || tx.Status != StatusCommitted {
		t.Fatalf("Burn = %s, err %v", tx.Status, err)
	}
	if tx, err = svc.Redeem(ctx, "redeem-1", "alice", receipt.ID); err != nil || tx.Status != StatusCommitted {
		t.Fatalf("Redeem = %s, err %v", tx.Status, err)
	}
	if _, err := svc.ActiveReceipt(ctx, holdingID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ActiveReceipt after redeem err = %v, want ErrNotFound", err)
	}

	// The holding is free again for a fresh issuance.
	if tx, err = svc.Issue(ctx, "issue-2", "alice", holdingID); err != nil || tx.Status != StatusCommitted {
		t.Fatalf("Issue = %s, err %v", tx.Status, err)
	}
}
