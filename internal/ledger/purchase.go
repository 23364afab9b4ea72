package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizePurchase applies the stored sign and casing rules: a Paid entry is
// always negative, every other type is stored as an absolute value.
func NormalizePurchase(log PurchaseLog) (PurchaseLog, error) {
	if !log.ChangeType.Valid() {
		return PurchaseLog{}, fmt.Errorf("%w: %d", ErrInvalidChangeType, log.ChangeType)
	}
	if log.Change.IsZero() {
		return PurchaseLog{}, ErrZeroChange
	}
	if log.ChangeType == PurchasePaid {
		log.Change = log.Change.Abs().Neg()
	} else {
		log.Change = log.Change.Abs()
	}
	upper := cases.Upper(language.Und)
	log.Reference = upper.String(strings.TrimSpace(log.Reference))
	log.Category = upper.String(strings.TrimSpace(log.Category))
	return log, nil
}

// AddPurchase stores a normalised vendor purchase entry.
func (e *Engine) AddPurchase(ctx context.Context, tx TxRepository, log PurchaseLog) (PurchaseLog, error) {
	log, err := NormalizePurchase(log)
	if err != nil {
		return PurchaseLog{}, err
	}
	if log.Date.IsZero() {
		log.Date = e.now()
	}
	return tx.InsertPurchaseLog(ctx, log)
}

// PurchaseTotals aggregates purchase entries by type.
type PurchaseTotals struct {
	Purchased decimal.Decimal `json:"purchased"`
	Paid      decimal.Decimal `json:"paid"`
	Others    decimal.Decimal `json:"others"`
	Balance   decimal.Decimal `json:"balance"`
}

// SumPurchases totals entries per type; Balance is the plain sum of all changes.
func SumPurchases(logs []PurchaseLog) PurchaseTotals {
	totals := PurchaseTotals{
		Purchased: decimal.Zero,
		Paid:      decimal.Zero,
		Others:    decimal.Zero,
		Balance:   decimal.Zero,
	}
	for _, log := range logs {
		switch log.ChangeType {
		case PurchasePurchase:
			totals.Purchased = totals.Purchased.Add(log.Change)
		case PurchasePaid:
			totals.Paid = totals.Paid.Add(log.Change)
		case PurchaseOthers:
			totals.Others = totals.Others.Add(log.Change)
		}
		totals.Balance = totals.Balance.Add(log.Change)
	}
	return totals
}
