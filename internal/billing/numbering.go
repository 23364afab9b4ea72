package billing

import (
	"context"
	"fmt"
)

// Document selects a numbering series family.
type Document string

const (
	DocInvoice   Document = "invoice"
	DocQuotation Document = "quotation"
)

// NumberingRepository is the persistence needed to allocate document numbers.
type NumberingRepository interface {
	GetBusinessProfile(ctx context.Context, tenantID int64) (BusinessProfile, error)
	ClaimNumberSeries(ctx context.Context, key string, number int64) error
	MaxNumber(ctx context.Context, doc Document, tenantID int64, isGST bool, businessGST string) (int64, error)
}

// SeriesKey names the series a tenant draws from. GST documents of every
// tenant registered under the same business GST share one series; non-GST
// documents, and GST documents of a tenant without a business GST, are
// numbered per tenant.
func SeriesKey(doc Document, tenantID int64, isGST bool, businessGST string) string {
	if isGST && businessGST != "" {
		return fmt.Sprintf("%s:gst:%s", doc, businessGST)
	}
	if isGST {
		return fmt.Sprintf("%s:tenant:%d:gst", doc, tenantID)
	}
	return fmt.Sprintf("%s:tenant:%d:nongst", doc, tenantID)
}

// NextNumber allocates max+1 in the tenant's series, starting at 1.
//
// The maximum is read from the transaction snapshot. Claiming the series row
// afterwards makes a concurrent allocation that committed after that snapshot
// fail the transaction with a serialization error, which db.WithTx retries.
func NextNumber(ctx context.Context, tx NumberingRepository, doc Document, tenantID int64, isGST bool) (int64, error) {
	key, businessGST, err := seriesFor(ctx, tx, doc, tenantID, isGST)
	if err != nil {
		return 0, err
	}
	last, err := tx.MaxNumber(ctx, doc, tenantID, isGST, businessGST)
	if err != nil {
		return 0, fmt.Errorf("max %s number: %w", doc, err)
	}
	if err := tx.ClaimNumberSeries(ctx, key, last+1); err != nil {
		return 0, fmt.Errorf("claim %s series: %w", doc, err)
	}
	return last + 1, nil
}

// ReserveNumber claims the series for a caller-supplied number so it
// serialises against concurrent allocations in the same series.
func ReserveNumber(ctx context.Context, tx NumberingRepository, doc Document, tenantID int64, isGST bool, number int64) error {
	key, _, err := seriesFor(ctx, tx, doc, tenantID, isGST)
	if err != nil {
		return err
	}
	if err := tx.ClaimNumberSeries(ctx, key, number); err != nil {
		return fmt.Errorf("claim %s series: %w", doc, err)
	}
	return nil
}

func seriesFor(ctx context.Context, tx NumberingRepository, doc Document, tenantID int64, isGST bool) (string, string, error) {
	profile, err := tx.GetBusinessProfile(ctx, tenantID)
	if err != nil {
		return "", "", fmt.Errorf("load business profile: %w", err)
	}
	businessGST := ""
	if isGST {
		businessGST = profile.BusinessGST
	}
	return SeriesKey(doc, tenantID, isGST, businessGST), businessGST, nil
}
