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

type accountCmd struct {
	id       string
	owner    string
	currency string
}

func (*accountCmd) Name() string     { return "account" }
func (*accountCmd) Synopsis() string { return "provision a new account" }
func (*accountCmd) Usage() string {
	return `account -owner <owner> -c <currency> [-id <id>]

  Provisions an active account with a zero balance.
`
}

func (c *accountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Account id; generated when empty.")
	f.StringVar(&c.owner, "owner", "", "Owner of the account.")
	f.StringVar(&c.currency, "c", "", "ISO currency code of the account.")
}

func (c *accountCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	eng, flog, err := openEngine(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer flog.Close()

	acc, err := eng.ProvisionAccount(ctx, c.id, c.owner, strings.ToUpper(c.currency))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printMarkdown(fmt.Sprintf("Provisioned account `%s` for **%s** in %s\n", acc.ID, acc.Owner, acc.Currency))
	return subcommands.ExitSuccess
}

type statusCmd struct {
	account string
	status  string
}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "freeze, unfreeze or close an account" }
func (*statusCmd) Usage() string {
	return `status -a <account> -s <active|frozen|closed>

  Changes the lifecycle status of an account. Closed is terminal.
`
}

func (c *statusCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Account id.")
	f.StringVar(&c.status, "s", "", "New status: active, frozen or closed.")
}

func (c *statusCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	eng, flog, err := openEngine(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer flog.Close()

	acc, err := eng.SetAccountStatus(ctx, c.account, ledger.AccountStatus(c.status))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printMarkdown(fmt.Sprintf("Account `%s` is now **%s**\n", acc.ID, acc.Status))
	return subcommands.ExitSuccess
}
