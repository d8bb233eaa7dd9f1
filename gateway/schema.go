package gateway

import (
	"github.com/go-playground/validator/v10"

	"github.com/meridianbank/ledger"
)

var validate = validator.New()

// MoneySchema is the wire form of an amount.
type MoneySchema struct {
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

func (m MoneySchema) Money() (ledger.Money, error) {
	return ledger.ParseMoney(m.Amount, m.Currency)
}

type CreateAccountSchema struct {
	ID       string `json:"id"`
	Owner    string `json:"owner" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

type AccountStatusSchema struct {
	Status string `json:"status" validate:"required,oneof=active frozen closed"`
}

type MoveFundsSchema struct {
	Key    string      `json:"key" validate:"required"`
	Amount MoneySchema `json:"amount" validate:"required"`
}

type TransferSchema struct {
	Key    string      `json:"key" validate:"required"`
	From   string      `json:"from" validate:"required"`
	To     string      `json:"to" validate:"required"`
	Amount MoneySchema `json:"amount" validate:"required"`
}

type CreateHoldingSchema struct {
	ID        string      `json:"id"`
	Owner     string      `json:"owner" validate:"required"`
	Class     string      `json:"class" validate:"required"`
	Quantity  string      `json:"quantity"`
	Valuation MoneySchema `json:"valuation" validate:"required"`
}

func (s CreateHoldingSchema) Holding() (ledger.AssetHolding, error) {
	valuation, err := s.Valuation.Money()
	if err != nil {
		return ledger.AssetHolding{}, err
	}
	h := ledger.AssetHolding{
		ID:        s.ID,
		Owner:     s.Owner,
		Class:     ledger.AssetClass(s.Class),
		Valuation: valuation,
	}
	if s.Quantity != "" {
		q, err := ledger.ParseQuantity(s.Quantity)
		if err != nil {
			return ledger.AssetHolding{}, err
		}
		h.Quantity = &q
	}
	return h, nil
}

// SecureCustodySchema registers a holding and issues its first receipt in
// one transaction.
type SecureCustodySchema struct {
	Key     string              `json:"key" validate:"required"`
	Holding CreateHoldingSchema `json:"holding" validate:"required"`
}

type KeyedSchema struct {
	Key string `json:"key" validate:"required"`
}

type CreateTrustSchema struct {
	ID          string `json:"id"`
	Beneficiary string `json:"beneficiary" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

type TrustAllocateSchema struct {
	Key      string       `json:"key" validate:"required"`
	From     string       `json:"from"`
	Amount   *MoneySchema `json:"amount"`
	Holdings []string     `json:"holdings"`
}

// TransactionSchema is the wire form of a decided transaction.
type TransactionSchema struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	AppliedAt string `json:"applied_at,omitempty"`
	Entities  []any  `json:"entities,omitempty"`
}

func transactionSchema(tx ledger.Transaction) TransactionSchema {
	out := TransactionSchema{
		ID:      tx.ID,
		Key:     tx.Key,
		Kind:    string(tx.Kind),
		Status:  string(tx.Status),
		Reason:  string(tx.Reason),
		Message: tx.Message,
	}
	if tx.AppliedAt != nil {
		out.AppliedAt = tx.AppliedAt.Format("2006-01-02T15:04:05.999999999Z07:00")
	}
	for _, eff := range tx.Effects {
		out.Entities = append(out.Entities, eff.Entity)
	}
	return out
}

type ErrorSchema struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
