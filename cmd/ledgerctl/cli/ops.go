// Package cli implements the ledgerctl repair commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/jobs"
)

// Recomputer runs a recompute over one or every tenant.
type Recomputer interface {
	Run(ctx context.Context, tenantID int64) (jobs.RecomputeSummary, error)
}

// InvoiceRepairer re-applies missing ledger sides of an invoice.
type InvoiceRepairer interface {
	PushToBooks(ctx context.Context, tenantID, id int64) (billing.Repair, error)
}

// BookReader loads a book and its entries.
type BookReader interface {
	BookStatement(ctx context.Context, tenantID, bookID int64, active *bool) (ledger.Book, []ledger.BookLog, error)
}

// OpsDeps wires the services behind the repair commands.
type OpsDeps struct {
	Recompute  Recomputer
	Merger     jobs.Merger
	Invoices   InvoiceRepairer
	Books      BookReader
	Statements ledger.StatementRenderer
}

// OpsCLI runs repair commands and prints their outcome.
type OpsCLI struct {
	deps OpsDeps
}

// NewOpsCLI constructs OpsCLI.
func NewOpsCLI(deps OpsDeps) *OpsCLI {
	return &OpsCLI{deps: deps}
}

// Output selects where and how a command reports.
type Output struct {
	JSON   bool
	Stdout io.Writer
	Stderr io.Writer
}

func (o Output) normalize() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// RecomputeCommand recomputes caches. Exit code 10 reports tenants skipped
// because a merge held their maintenance lock.
func (c *OpsCLI) RecomputeCommand(ctx context.Context, tenantID int64, out Output) int {
	out = out.normalize()
	if tenantID < 0 {
		return fail(out, "recompute", errors.New("-tenant must be zero (all) or positive"))
	}
	if c.deps.Recompute == nil {
		return fail(out, "recompute", errors.New("not configured"))
	}
	summary, err := c.deps.Recompute.Run(ctx, tenantID)
	if err != nil {
		return fail(out, "recompute", err)
	}
	if out.JSON {
		if code := encode(out, "recompute", summary); code != 0 {
			return code
		}
	} else {
		_, _ = fmt.Fprintf(out.Stdout, "recomputed %d tenant(s), corrected %d drifted cache(s)\n", summary.Tenants, summary.Drifted)
		if summary.Skipped > 0 {
			_, _ = fmt.Fprintf(out.Stdout, "%d tenant(s) skipped: maintenance lock held\n", summary.Skipped)
		}
	}
	if summary.Skipped > 0 {
		return 10
	}
	return 0
}

// MergeCommand merges duplicate customers or products of one tenant.
func (c *OpsCLI) MergeCommand(ctx context.Context, tenantID int64, kind string, out Output) int {
	out = out.normalize()
	if tenantID <= 0 {
		return fail(out, "merge", errors.New("-tenant is required and must be positive"))
	}
	mk := identity.MergeKind(kind)
	if !mk.Valid() {
		return fail(out, "merge", fmt.Errorf("-kind must be %s or %s", identity.MergeCustomers, identity.MergeProducts))
	}
	report, err := c.deps.Merger.Merge(ctx, tenantID, mk)
	if err != nil {
		return fail(out, "merge", err)
	}
	if out.JSON {
		return encode(out, "merge", report)
	}
	_, _ = fmt.Fprintf(out.Stdout, "merged %d %s group(s): %d removed, %d log(s) moved\n", report.Groups, report.Kind, report.Removed, report.LogsMoved)
	if report.Kind == identity.MergeCustomers {
		_, _ = fmt.Fprintf(out.Stdout, "books merged %d, invoices moved %d, quotations moved %d\n", report.BooksMerged, report.InvoicesMoved, report.QuotationsMoved)
	}
	return 0
}

// PushToBooksCommand repairs the ledger sides of one invoice.
func (c *OpsCLI) PushToBooksCommand(ctx context.Context, tenantID, invoiceID int64, out Output) int {
	out = out.normalize()
	if tenantID <= 0 || invoiceID <= 0 {
		return fail(out, "push-to-books", errors.New("-tenant and -invoice are required"))
	}
	repair, err := c.deps.Invoices.PushToBooks(ctx, tenantID, invoiceID)
	if err != nil {
		return fail(out, "push-to-books", err)
	}
	if out.JSON {
		return encode(out, "push-to-books", repair)
	}
	_, _ = fmt.Fprintf(out.Stdout, "invoice %d: inventory applied=%t books applied=%t stale flags reset=%d\n",
		invoiceID, repair.Inventory, repair.Books, repair.StaleFlagsReset)
	return 0
}

// ExportBookCommand writes a book statement workbook to path.
func (c *OpsCLI) ExportBookCommand(ctx context.Context, tenantID, bookID int64, path string, out Output) int {
	out = out.normalize()
	if tenantID <= 0 || bookID <= 0 || path == "" {
		return fail(out, "export-book", errors.New("-tenant, -book and -out are required"))
	}
	book, logs, err := c.deps.Books.BookStatement(ctx, tenantID, bookID, nil)
	if err != nil {
		return fail(out, "export-book", err)
	}
	data, err := c.deps.Statements.BookStatement(book, logs)
	if err != nil {
		return fail(out, "export-book", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fail(out, "export-book", err)
	}
	_, _ = fmt.Fprintf(out.Stdout, "wrote %d entries to %s\n", len(logs), path)
	return 0
}

func fail(out Output, cmd string, err error) int {
	_, _ = fmt.Fprintf(out.Stderr, "%s: %v\n", cmd, err)
	return 1
}

func encode(out Output, cmd string, v any) int {
	if err := json.NewEncoder(out.Stdout).Encode(v); err != nil {
		return fail(out, cmd, fmt.Errorf("encode json: %w", err))
	}
	return 0
}
