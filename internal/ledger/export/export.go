// Package export renders ledger statements as XLSX workbooks.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/gstbilling/internal/ledger"
)

const (
	sheet      = "Sheet1"
	dateLayout = "2006-01-02 15:04"
)

// ContentType is the MIME type of the produced workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Exporter renders statements.
type Exporter struct{}

// NewExporter constructs Exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// BookStatement renders every entry of a book followed by the cached balance.
func (e *Exporter) BookStatement(book ledger.Book, logs []ledger.BookLog) ([]byte, error) {
	rows := make([][]any, 0, len(logs)+3)
	rows = append(rows, []any{"Date", "Type", "Description", "Change", "Active", "Created By"})
	for _, log := range logs {
		rows = append(rows, []any{
			log.Date.Format(dateLayout),
			log.ChangeType.String(),
			log.Description,
			log.Change.InexactFloat64(),
			yesNo(log.IsActive),
			log.CreatedBy,
		})
	}
	rows = append(rows, nil, []any{"Balance", "", book.CustomerName, book.CurrentBalance.InexactFloat64()})
	return render(rows)
}

// InventoryStatement renders every entry of a product followed by the cached stock.
func (e *Exporter) InventoryStatement(inv ledger.Inventory, logs []ledger.InventoryLog) ([]byte, error) {
	rows := make([][]any, 0, len(logs)+3)
	rows = append(rows, []any{"Date", "Type", "Description", "Change", "Invoice"})
	for _, log := range logs {
		invoice := ""
		if log.InvoiceID != nil {
			invoice = fmt.Sprint(*log.InvoiceID)
		}
		rows = append(rows, []any{
			log.Date.Format(dateLayout),
			log.ChangeType.String(),
			log.Description,
			log.Change,
			invoice,
		})
	}
	rows = append(rows, nil, []any{"Stock", inv.ModelNo, inv.ProductName, inv.CurrentStock})
	return render(rows)
}

func render(rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		if row == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
