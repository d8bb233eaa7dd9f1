package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/meridianbank/ledger"
)

type trustCmd struct {
	id          string
	beneficiary string
	trustType   string
	currency    string
}

func (*trustCmd) Name() string     { return "trust" }
func (*trustCmd) Synopsis() string { return "provision a new trust record" }
func (*trustCmd) Usage() string {
	return `trust -b <beneficiary> -t <type> -c <currency> [-id <id>]

  Provisions an empty trust record managed for a beneficiary.
`
}

func (c *trustCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Trust id; generated when empty.")
	f.StringVar(&c.beneficiary, "b", "", "Beneficiary of the trust.")
	f.StringVar(&c.trustType, "t", "", "Trust type, e.g. family or education.")
	f.StringVar(&c.currency, "c", "", "ISO currency code of the trust balance.")
}

func (c *trustCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	eng, flog, err := openEngine(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer flog.Close()

	trust, err := eng.ProvisionTrust(ctx, c.id, c.beneficiary, c.trustType, strings.ToUpper(c.currency))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printMarkdown(fmt.Sprintf("Provisioned %s trust `%s` for **%s**\n", trust.Type, trust.ID, trust.Beneficiary))
	return subcommands.ExitSuccess
}

type allocateCmd struct {
	key      string
	trust    string
	from     string
	amount   string
	currency string
	holdings string
}

func (*allocateCmd) Name() string     { return "allocate" }
func (*allocateCmd) Synopsis() string { return "fund a trust or attach holdings to it" }
func (*allocateCmd) Usage() string {
	return `allocate -t <trust> [-from <account> -q <amount> -c <currency>] [-h <holding>[,<holding>...]] [-k <key>]

  Funds a trust from an account owned by the caller and attaches holdings
  of the trust's beneficiary. Both legs commit together or not at all.
`
}

func (c *allocateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.trust, "t", "", "Trust id.")
	f.StringVar(&c.from, "from", "", "Funding account, owned by the caller.")
	f.StringVar(&c.amount, "q", "", "Amount to allocate.")
	f.StringVar(&c.currency, "c", "", "ISO currency code of the amount.")
	f.StringVar(&c.holdings, "h", "", "Comma-separated holding ids to attach.")
}

func (c *allocateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	amount := ledger.Money{}
	if c.amount != "" {
		var err error
		if amount, err = parseMoney(c.amount, c.currency); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}
	var holdings []string
	if c.holdings != "" {
		holdings = strings.Split(c.holdings, ",")
	}
	return submitRequest(ctx, ledger.NewTrustAllocate(newKey(c.key), *callerFlag, c.trust, c.from, amount, holdings...))
}

type holdingCmd struct {
	id        string
	owner     string
	class     string
	quantity  string
	valuation string
	currency  string
}

func (*holdingCmd) Name() string     { return "holding" }
func (*holdingCmd) Synopsis() string { return "register an asset holding" }
func (*holdingCmd) Usage() string {
	return `holding -owner <owner> -class <class> -v <valuation> -c <currency> [-n <quantity>] [-id <id>]

  Registers an asset holding outside of custody. Use the custody command to
  register and receipt a holding in one transaction.
`
}

func (c *holdingCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Holding id; generated when empty.")
	f.StringVar(&c.owner, "owner", "", "Owner of the holding.")
	f.StringVar(&c.class, "class", "", "Asset class: equity, bond, real_estate, crypto, precious_metal or commodity.")
	f.StringVar(&c.quantity, "n", "", "Quantity, for fungible assets.")
	f.StringVar(&c.valuation, "v", "", "Valuation amount.")
	f.StringVar(&c.currency, "c", "", "Valuation currency.")
}

func (c *holdingCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	valuation, err := parseMoney(c.valuation, c.currency)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	h := ledger.AssetHolding{
		ID:        c.id,
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

	eng, flog, err := openEngine(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer flog.Close()

	h, err = eng.ProvisionHolding(ctx, h)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printMarkdown(fmt.Sprintf("Registered %s holding `%s` owned by **%s**, valued %s\n", h.Class, h.ID, h.Owner, h.Valuation))
	return subcommands.ExitSuccess
}

type revalueCmd struct {
	key       string
	holding   string
	valuation string
	currency  string
}

func (*revalueCmd) Name() string     { return "revalue" }
func (*revalueCmd) Synopsis() string { return "record a new valuation for a holding" }
func (*revalueCmd) Usage() string {
	return `revalue -h <holding> -v <valuation> -c <currency> [-k <key>]

  Records a new valuation for a holding, in the holding's currency.
`
}

func (c *revalueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.key, "k", "", "Idempotency key; generated when empty.")
	f.StringVar(&c.holding, "h", "", "Holding id.")
	f.StringVar(&c.valuation, "v", "", "New valuation amount.")
	f.StringVar(&c.currency, "c", "", "Valuation currency.")
}

func (c *revalueCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	valuation, err := parseMoney(c.valuation, c.currency)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return submitRequest(ctx, ledger.NewRevalue(newKey(c.key), *callerFlag, c.holding, valuation))
}
