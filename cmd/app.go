// Package cmd implements the CLI application to manage a ledger.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meridianbank/ledger"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&accountCmd{}, "provisioning")
	c.Register(&statusCmd{}, "provisioning")
	c.Register(&holdingCmd{}, "provisioning")
	c.Register(&trustCmd{}, "provisioning")

	c.Register(&depositCmd{}, "transactions")
	c.Register(&withdrawCmd{}, "transactions")
	c.Register(&transferCmd{}, "transactions")
	c.Register(&revalueCmd{}, "transactions")
	c.Register(&allocateCmd{}, "transactions")

	c.Register(&custodyCmd{}, "custody")
	c.Register(&redeemCmd{}, "custody")
	c.Register(&tokenizeCmd{}, "custody")
	c.Register(&burnCmd{}, "custody")

	c.Register(&txCmd{}, "reporting")
	c.Register(&replayCmd{}, "reporting")

	c.Register(&serveCmd{}, "server")
	c.Register(&topicCmd{}, "help")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var journalFile = flag.String("journal", "ledger.jsonl", "Path to the transaction journal (JSONL format)")
var callerFlag = flag.String("caller", "", "Acting caller identity; empty acts as the bank itself")

// openEngine rebuilds the engine state by replaying the journal into a fresh
// in-memory store. The caller must Close the returned log.
func openEngine(ctx context.Context) (*ledger.Engine, *ledger.FileLog, error) {
	flog, err := ledger.OpenFileLog(*journalFile)
	if err != nil {
		return nil, nil, err
	}
	store := ledger.NewMemoryStore()
	if err := ledger.Replay(ctx, flog, store); err != nil {
		flog.Close()
		return nil, nil, err
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	eng := ledger.NewEngine(store, flog, ledger.WithLogger(logger))
	return eng, flog, nil
}

// newKey returns the idempotency key for a submission: the -k flag value, or
// a generated one for interactive use.
func newKey(k string) string {
	if k != "" {
		return k
	}
	return uuid.NewString()
}

// submitRequest runs one request through a freshly opened engine and renders
// the decided transaction.
func submitRequest(ctx context.Context, req ledger.Request) subcommands.ExitStatus {
	eng, flog, err := openEngine(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer flog.Close()

	tx, err := eng.Submit(ctx, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	printMarkdown(renderTransaction(tx))
	if tx.Status == ledger.StatusRejected {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// renderTransaction renders a decided transaction as markdown.
func renderTransaction(tx ledger.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Transaction %s\n\n", tx.Key)
	fmt.Fprintf(&b, "- kind: %s\n", tx.Kind)
	fmt.Fprintf(&b, "- status: **%s**\n", tx.Status)
	if tx.Reason != "" {
		fmt.Fprintf(&b, "- reason: `%s`\n", tx.Reason)
		fmt.Fprintf(&b, "- message: %s\n", tx.Message)
	}
	for _, eff := range tx.Effects {
		switch e := eff.Entity.(type) {
		case ledger.Account:
			fmt.Fprintf(&b, "- account %s: balance %s (%s)\n", e.ID, e.Balance, e.Status)
		case ledger.AssetHolding:
			fmt.Fprintf(&b, "- holding %s: %s owned by %s\n", e.ID, e.Class, e.Owner)
		case ledger.CustodyReceipt:
			fmt.Fprintf(&b, "- receipt %s (%s) over holding %s\n", e.Number, e.Status, e.Holding)
		case ledger.TrustRecord:
			fmt.Fprintf(&b, "- trust %s: balance %s for %s\n", e.ID, e.Balance, e.Beneficiary)
		case ledger.DigitalToken:
			fmt.Fprintf(&b, "- token %s (%s) over holding %s\n", e.Reference, e.Status, e.Holding)
		}
	}
	return b.String()
}

// printMarkdown renders markdown for the terminal, falling back to the raw
// text when rendering fails.
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

// parseMoney parses the conventional "<amount> <currency>" CLI argument pair.
func parseMoney(amount, currency string) (ledger.Money, error) {
	if amount == "" || currency == "" {
		return ledger.Money{}, fmt.Errorf("an amount and a currency are required")
	}
	return ledger.ParseMoney(amount, strings.ToUpper(currency))
}
