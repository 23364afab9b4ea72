package identity

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultRegion is used to parse phone numbers written without a country code.
const DefaultRegion = "IN"

const userIDPrefix = "gst"

// Normalizer canonicalises natural-key fields before lookup or insert.
// A cases.Caser is not safe for concurrent use, so one is built per call.
type Normalizer struct {
	region string
}

// NewNormalizer constructs Normalizer for the phone region.
func NewNormalizer(region string) Normalizer {
	if region == "" {
		region = DefaultRegion
	}
	return Normalizer{region: strings.ToUpper(region)}
}

// Phone returns the E.164 form of a valid number, otherwise the trimmed input.
func (n Normalizer) Phone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, n.region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}

// Customer upper-cases name, address and GST, lower-cases email and
// canonicalises the phone.
func (n Normalizer) Customer(c Customer) Customer {
	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	c.Name = upper.String(strings.TrimSpace(c.Name))
	c.Address = upper.String(strings.TrimSpace(c.Address))
	c.GST = upper.String(strings.TrimSpace(c.GST))
	c.Email = lower.String(strings.TrimSpace(c.Email))
	c.Phone = n.Phone(c.Phone)
	return c
}

// CustomerKey normalises a strict-path key.
func (n Normalizer) CustomerKey(k CustomerKey) CustomerKey {
	c := n.Customer(Customer{Name: k.Name, Address: k.Address, Phone: k.Phone, GST: k.GST})
	return c.Key()
}

// Product upper-cases the model number and name.
func (n Normalizer) Product(p Product) Product {
	upper := cases.Upper(language.Und)
	p.ModelNo = upper.String(strings.TrimSpace(p.ModelNo))
	p.Name = upper.String(strings.TrimSpace(p.Name))
	p.HSN = strings.TrimSpace(p.HSN)
	return p
}

// CustomerUserID builds the login id of a customer.
func CustomerUserID(tenantID, customerID int64) string {
	return strings.ToLower(fmt.Sprintf("%s%dC%d", userIDPrefix, tenantID, customerID))
}
