package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/meridianbank/ledger"
)

type depositCmd struct {
	key      string
	account  string
	amount   string
	currency string
}

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "credit an account" }
func (*depositCmd) Usage() string {
	return `deposit -a <account> -q <amount> -c <currency> [-k <key>]

  Credits an active account. The amount must be positive and in the
  account's currency.
`
}

func (c *depositCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.account, "a", "", "Account to credit.")
	f.StringVar(&c.amount, "q", "", "Amount to credit.")
	f.StringVar(&c.currency, "c", "", "ISO currency code of the amount.")
}

func (c *depositCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	amount, err := parseMoney(c.amount, c.currency)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return submitRequest(ctx, ledger.NewDeposit(newKey(c.key), *callerFlag, c.account, amount))
}

type withdrawCmd struct {
	key      string
	account  string
	amount   string
	currency string
}

func (*withdrawCmd) Name() string     { return "withdraw" }
func (*withdrawCmd) Synopsis() string { return "debit an account" }
func (*withdrawCmd) Usage() string {
	return `withdraw -a <account> -q <amount> -c <currency> [-k <key>]

  Debits an active account owned by the caller. The balance can never go
  negative; an overdraft attempt is rejected.
`
}

func (c *withdrawCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.account, "a", "", "Account to debit.")
	f.StringVar(&c.amount, "q", "", "Amount to debit.")
	f.StringVar(&c.currency, "c", "", "ISO currency code of the amount.")
}

func (c *withdrawCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	amount, err := parseMoney(c.amount, c.currency)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return submitRequest(ctx, ledger.NewWithdrawal(newKey(c.key), *callerFlag, c.account, amount))
}

type transferCmd struct {
	key      string
	from     string
	to       string
	amount   string
	currency string
}

func (*transferCmd) Name() string     { return "transfer" }
func (*transferCmd) Synopsis() string { return "move funds between two accounts" }
func (*transferCmd) Usage() string {
	return `transfer -from <account> -to <account> -q <amount> -c <currency> [-k <key>]

  Moves funds atomically between two active accounts of the same currency.
`
}

func (c *transferCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.from, "from", "", "Source account, owned by the caller.")
	f.StringVar(&c.to, "to", "", "Destination account.")
	f.StringVar(&c.amount, "q", "", "Amount to move.")
	f.StringVar(&c.currency, "c", "", "ISO currency code of the amount.")
}

func (c *transferCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	amount, err := parseMoney(c.amount, c.currency)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return submitRequest(ctx, ledger.NewTransfer(newKey(c.key), *callerFlag, c.from, c.to, amount))
}
