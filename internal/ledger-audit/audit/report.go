// Package audit confere o invariante do ledger: o saldo de cada conta é o
// balance_after do seu último lançamento.
package audit

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

type Source interface {
	LedgerDiscrepancies(ctx context.Context) ([]model.LedgerDiscrepancy, error)
}

// Run imprime o relatório em out e devolve quantas contas divergem.
func Run(ctx context.Context, src Source, out io.Writer) (int, error) {
	found, err := src.LedgerDiscrepancies(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: discrepancies: %w", err)
	}
	if len(found) == 0 {
		fmt.Fprintln(out, "ledger ok: every balance matches its last transaction")
		return 0, nil
	}

	fmt.Fprintf(out, "%d account(s) with balance != last balance_after\n", len(found))
	table := tablewriter.NewWriter(out)
	table.Header("User", "Balance", "Last balance_after", "Diff", "Txs")
	for _, d := range found {
		if err := table.Append(
			d.UserID,
			d.Balance.StringFixed(2),
			d.LastBalanceAfter.StringFixed(2),
			d.Balance.Sub(d.LastBalanceAfter).StringFixed(2),
			fmt.Sprintf("%d", d.Transactions),
		); err != nil {
			return 0, fmt.Errorf("audit: render: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return 0, fmt.Errorf("audit: render: %w", err)
	}
	return len(found), nil
}
