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

type txCmd struct {
	entity string
	key    string
	head   int
	tail   int
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "list recorded transactions" }
func (*txCmd) Usage() string {
	return `tx [-e <entity>] [-key <key>] [-head <n> | -tail <n>]

  Lists transactions from the journal, newest last. With -e, only the audit
  trail of one entity; with -key, a single transaction.
`
}

func (p *txCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.entity, "e", "", "Show only transactions that touched this entity.")
	f.StringVar(&p.key, "key", "", "Show the transaction recorded under this idempotency key.")
	f.IntVar(&p.head, "head", 0, "Show only the first N transactions.")
	f.IntVar(&p.tail, "tail", 0, "Show only the last N transactions.")
}

func (p *txCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.head > 0 && p.tail > 0 {
		fmt.Fprintln(os.Stderr, "Error: -head and -tail flags cannot be used together.")
		return subcommands.ExitUsageError
	}

	eng, flog, err := openEngine(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer flog.Close()

	if p.key != "" {
		tx, err := eng.TransactionByKey(ctx, p.key)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		printMarkdown(renderTransaction(tx))
		return subcommands.ExitSuccess
	}

	var txs []ledger.Transaction
	if p.entity != "" {
		txs, err = eng.TransactionsFor(ctx, p.entity)
	} else {
		txs, err = flog.All(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if p.head > 0 && len(txs) > p.head {
		txs = txs[:p.head]
	}
	if p.tail > 0 && len(txs) > p.tail {
		txs = txs[len(txs)-p.tail:]
	}

	var b strings.Builder
	b.WriteString("| key | kind | status | reason |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, tx := range txs {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", tx.Key, tx.Kind, tx.Status, tx.Reason)
	}
	printMarkdown(b.String())
	return subcommands.ExitSuccess
}

type replayCmd struct{}

func (*replayCmd) Name() string     { return "replay" }
func (*replayCmd) Synopsis() string { return "rebuild entity state from the journal" }
func (*replayCmd) Usage() string {
	return `replay

  Replays the journal from scratch and prints the resulting entities. The
  journal is the source of truth: this is the state every backend converges
  to.
`
}

func (c *replayCmd) SetFlags(f *flag.FlagSet) {}

func (c *replayCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	flog, err := ledger.OpenFileLog(*journalFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer flog.Close()

	store := ledger.NewMemoryStore()
	if err := ledger.Replay(ctx, flog, store); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	entities, err := store.List(ctx, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Replayed state (%d entities)\n\n", len(entities))
	for _, e := range entities {
		switch v := e.(type) {
		case ledger.Account:
			fmt.Fprintf(&b, "- account `%s`: %s, balance %s (%s)\n", v.ID, v.Owner, v.Balance, v.Status)
		case ledger.AssetHolding:
			fmt.Fprintf(&b, "- holding `%s`: %s of %s, valued %s\n", v.ID, v.Class, v.Owner, v.Valuation)
		case ledger.CustodyReceipt:
			fmt.Fprintf(&b, "- receipt `%s`: %s over %s (%s)\n", v.ID, v.Number, v.Holding, v.Status)
		case ledger.TrustRecord:
			fmt.Fprintf(&b, "- trust `%s`: %s for %s, balance %s (%s)\n", v.ID, v.Type, v.Beneficiary, v.Balance, v.Status)
		case ledger.DigitalToken:
			fmt.Fprintf(&b, "- token `%s`: %s over %s (%s)\n", v.ID, v.Reference, v.Holding, v.Status)
		}
	}
	printMarkdown(b.String())
	return subcommands.ExitSuccess
}
