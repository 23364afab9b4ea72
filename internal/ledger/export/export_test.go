package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/ledger/export"
)

func TestBookStatementWritesEntriesAndBalance(t *testing.T) {
	book := ledger.Book{ID: 1, CustomerName: "ACME", CurrentBalance: decimal.NewFromInt(-600)}
	logs := []ledger.BookLog{
		{ID: 1, Date: time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC), Change: decimal.NewFromInt(-600), ChangeType: ledger.BookPurchasedItems, Description: ledger.DescPurchase, CreatedBy: ledger.DefaultCreator, IsActive: true},
		{ID: 2, Date: time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC), Change: decimal.NewFromInt(100), ChangeType: ledger.BookPending, Description: ledger.DescCheque, CreatedBy: "ACME via Mobile App"},
	}

	data, err := export.NewExporter().BookStatement(book, logs)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	require.Equal(t, "Date", header)

	typ, err := f.GetCellValue("Sheet1", "B2")
	require.NoError(t, err)
	require.Equal(t, "Purchased Items", typ)

	active, err := f.GetCellValue("Sheet1", "E3")
	require.NoError(t, err)
	require.Equal(t, "No", active)

	label, err := f.GetCellValue("Sheet1", "A5")
	require.NoError(t, err)
	require.Equal(t, "Balance", label)
	balance, err := f.GetCellValue("Sheet1", "D5")
	require.NoError(t, err)
	require.Equal(t, "-600", balance)
}

func TestInventoryStatementWritesStockFooter(t *testing.T) {
	invoiceID := int64(42)
	inv := ledger.Inventory{ProductID: 3, ModelNo: "M1", ProductName: "WIDGET", CurrentStock: 45}
	logs := []ledger.InventoryLog{
		{ID: 1, Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), Change: 50, ChangeType: ledger.InventoryPurchase, Description: ledger.DescInitialStock},
		{ID: 2, Date: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), Change: -5, ChangeType: ledger.InventorySale, Description: ledger.DescSale, InvoiceID: &invoiceID},
	}

	data, err := export.NewExporter().InventoryStatement(inv, logs)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	invoice, err := f.GetCellValue("Sheet1", "E3")
	require.NoError(t, err)
	require.Equal(t, "42", invoice)

	stock, err := f.GetCellValue("Sheet1", "D5")
	require.NoError(t, err)
	require.Equal(t, "45", stock)
}
