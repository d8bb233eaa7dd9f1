package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/meridianbank/ledger"
)

type custodyCmd struct {
	key       string
	holding   string
	owner     string
	class     string
	quantity  string
	valuation string
	currency  string
}

func (*custodyCmd) Name() string     { return "custody" }
func (*custodyCmd) Synopsis() string { return "take an asset into custody and issue a receipt" }
func (*custodyCmd) Usage() string {
	return `custody -h <holding> [-owner <owner> -class <class> -v <valuation> -c <currency> [-n <quantity>]] [-k <key>]

  Issues a safe keeping receipt for a holding. When the holding does not
  exist yet and its description is given, it is registered and receipted in
  one transaction: if either step fails, neither happens.
`
}

func (c *custodyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.holding, "h", "", "Holding id.")
	f.StringVar(&c.owner, "owner", "", "Owner, for a holding created inline.")
	f.StringVar(&c.class, "class", "", "Asset class, for a holding created inline.")
	f.StringVar(&c.quantity, "n", "", "Quantity, for a fungible holding created inline.")
	f.StringVar(&c.valuation, "v", "", "Valuation amount, for a holding created inline.")
	f.StringVar(&c.currency, "c", "", "Valuation currency, for a holding created inline.")
}

func (c *custodyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" {
		return submitRequest(ctx, ledger.NewCustodyIssue(newKey(c.key), *callerFlag, c.holding))
	}

	valuation, err := parseMoney(c.valuation, c.currency)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	h := ledger.AssetHolding{
		ID:        c.holding,
		Owner:     c.owner,
		Class:     ledger.AssetClass(c.class),
		Valuation: valuation,
	}
	if c.quantity != "" {
		q, err := ledger.ParseQuantity(c.quantity)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
		h.Quantity = &q
	}
	return submitRequest(ctx, ledger.NewSecureCustody(newKey(c.key), *callerFlag, h))
}

type redeemCmd struct {
	key     string
	receipt string
}

func (*redeemCmd) Name() string     { return "redeem" }
func (*redeemCmd) Synopsis() string { return "redeem a safe keeping receipt" }
func (*redeemCmd) Usage() string {
	return `redeem -r <receipt> [-k <key>]

  Redeems an active receipt owned by the caller. A redeemed receipt is
  final; releasing the asset again requires a new issuance.
`
}

func (c *redeemCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.receipt, "r", "", "Receipt id.")
}

func (c *redeemCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return submitRequest(ctx, ledger.NewCustodyRedeem(newKey(c.key), *callerFlag, c.receipt))
}

type tokenizeCmd struct {
	key     string
	holding string
}

func (*tokenizeCmd) Name() string     { return "tokenize" }
func (*tokenizeCmd) Synopsis() string { return "mint a digital token for a holding" }
func (*tokenizeCmd) Usage() string {
	return `tokenize -h <holding> [-k <key>]

  Mints the digital twin of a holding. At most one live token exists per
  holding at any time.
`
}

func (c *tokenizeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.holding, "h", "", "Holding id.")
}

func (c *tokenizeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return submitRequest(ctx, ledger.NewTokenize(newKey(c.key), *callerFlag, c.holding))
}

type burnCmd struct {
	key   string
	token string
}

func (*burnCmd) Name() string     { return "burn" }
func (*burnCmd) Synopsis() string { return "burn a digital token" }
func (*burnCmd) Usage() string {
	return `burn -t <token> [-k <key>]

  Burns a minted token, freeing its holding for a new mint.
`
}

func (c *burnCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.token, "t", "", "Token id.")
}

func (c *burnCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return submitRequest(ctx, ledger.NewBurnToken(newKey(c.key), *callerFlag, c.token))
}
