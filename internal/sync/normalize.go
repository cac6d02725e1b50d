package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Payload is a decoded platform JSON object. Numbers are kept as
// json.Number so ids never lose precision.
type Payload map[string]interface{}

// DecodePayload parses raw JSON into a Payload. The body must hold exactly
// one JSON object.
func DecodePayload(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidPayload)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidPayload)
	}
	return p, nil
}

// extractor pulls one candidate value out of a payload
type extractor func(Payload) (interface{}, bool)

// at walks a dotted path; numeric segments index into arrays
func at(path string) extractor {
	segs := strings.Split(path, ".")
	return func(p Payload) (interface{}, bool) {
		var cur interface{} = map[string]interface{}(p)
		for _, seg := range segs {
			switch node := cur.(type) {
			case map[string]interface{}:
				v, ok := node[seg]
				if !ok {
					return nil, false
				}
				cur = v
			case []interface{}:
				idx, err := strconv.Atoi(seg)
				if err != nil || idx < 0 || idx >= len(node) {
					return nil, false
				}
				cur = node[idx]
			default:
				return nil, false
			}
		}
		if cur == nil {
			return nil, false
		}
		return cur, true
	}
}

func candidates(paths ...string) []extractor {
	out := make([]extractor, len(paths))
	for i, p := range paths {
		out[i] = at(p)
	}
	return out
}

// firstPresent returns the first candidate that is present and non-null
func firstPresent(p Payload, exs []extractor) (interface{}, bool) {
	for _, ex := range exs {
		if v, ok := ex(p); ok {
			return v, true
		}
	}
	return nil, false
}

// firstString returns the first candidate that yields a non-blank string.
// Blank candidates fall through to the next one.
func firstString(p Payload, exs []extractor) *string {
	for _, ex := range exs {
		v, ok := ex(p)
		if !ok {
			continue
		}
		if s := scalarString(v); s != nil {
			return s
		}
	}
	return nil
}

// scalarString renders strings and numbers, trimming and mapping empty to nil
func scalarString(v interface{}) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// externalID renders an id, unwrapping GraphQL global ids
// ("gid://shopify/Customer/123" -> "123")
func externalID(p Payload, exs []extractor) string {
	s := firstString(p, exs)
	if s == nil {
		return ""
	}
	id := *s
	if strings.HasPrefix(id, "gid://") {
		id = id[strings.LastIndex(id, "/")+1:]
	}
	return id
}

// ParseDecimal coerces strings, numbers and money objects into a float.
// Unparsable input yields nil rather than zero.
func ParseDecimal(v interface{}) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case map[string]interface{}:
		// Money bags: {"amount": "10.00"} or {"shop_money": {"amount": "10.00"}}
		if amt, ok := t["amount"]; ok {
			return ParseDecimal(amt)
		}
		if shop, ok := t["shop_money"]; ok {
			return ParseDecimal(shop)
		}
		return nil
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ParseInt coerces integral input; fractional or invalid input yields nil
func ParseInt(v interface{}) *int {
	f := ParseDecimal(v)
	if f == nil || *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	n := int(*f)
	return &n
}

// decimalField resolves the first present candidate. A present but invalid
// value is nil; it does not fall through to later candidates.
func decimalField(p Payload, exs []extractor) *float64 {
	v, ok := firstPresent(p, exs)
	if !ok {
		return nil
	}
	return ParseDecimal(v)
}

func timeField(p Payload, exs []extractor) *time.Time {
	s := firstString(p, exs)
	if s == nil {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, *s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// ParseTags accepts a comma-separated string or a JSON array, trims each
// entry, drops blanks and duplicates, and keeps first-seen order.
func ParseTags(v interface{}) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []interface{}:
		for _, item := range t {
			if s := scalarString(item); s != nil {
				raw = append(raw, *s)
			}
		}
	case []string:
		raw = t
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		out = append(out, tag)
	}
	return out
}

// NormalizeEmail lowercases and trims; blank becomes nil
func NormalizeEmail(s *string) *string {
	if s == nil {
		return nil
	}
	e := strings.ToLower(strings.TrimSpace(*s))
	if e == "" {
		return nil
	}
	return &e
}

// Candidate precedence per field. Earlier entries win.
var (
	customerIDPaths = candidates("id", "customer_id", "customerId", "admin_graphql_api_id")
	emailPaths      = candidates("email", "contact_email", "default_address.email")
	firstNamePaths  = candidates("first_name", "firstName", "default_address.first_name")
	lastNamePaths   = candidates("last_name", "lastName", "default_address.last_name")
	companyPaths    = candidates("company", "default_address.company", "addresses.0.company")
	phonePaths      = candidates("phone", "default_address.phone", "addresses.0.phone")
	address1Paths   = candidates("default_address.address1", "addresses.0.address1")
	address2Paths   = candidates("default_address.address2", "addresses.0.address2")
	cityPaths       = candidates("default_address.city", "addresses.0.city")
	provincePaths   = candidates("default_address.province_code", "default_address.province", "addresses.0.province")
	zipPaths        = candidates("default_address.zip", "addresses.0.zip")
	countryPaths    = candidates("default_address.country_code", "default_address.country", "addresses.0.country")
	tagsPaths       = candidates("tags")
	updatedAtPaths  = candidates("updated_at", "updatedAt")

	orderIDPaths         = candidates("id", "admin_graphql_api_id")
	orderNumberPaths     = candidates("order_number", "number")
	orderNamePaths       = candidates("name")
	orderCustomerPaths   = candidates("customer.id", "customer_id", "customer.admin_graphql_api_id")
	orderEmailPaths      = candidates("email", "contact_email", "customer.email")
	subtotalPaths        = candidates("current_subtotal_price", "subtotal_price", "subtotal_price_set")
	totalTaxPaths        = candidates("current_total_tax", "total_tax", "total_tax_set")
	totalDiscountPaths   = candidates("current_total_discounts", "total_discounts", "total_discounts_set")
	totalShippingPaths   = candidates("total_shipping_price_set", "shipping_lines.0.price")
	totalPricePaths      = candidates("current_total_price", "total_price", "total_price_set")
	currencyPaths        = candidates("currency", "presentment_currency")
	processedAtPaths     = candidates("processed_at", "created_at")
	financialStatusPaths = candidates("financial_status", "displayFinancialStatus")
	fulfillStatusPaths   = candidates("fulfillment_status", "displayFulfillmentStatus")

	lineIDPaths       = candidates("id", "admin_graphql_api_id")
	lineProductPaths  = candidates("product_id")
	lineVariantPaths  = candidates("variant_id")
	lineSKUPaths      = candidates("sku")
	lineTitlePaths    = candidates("title", "name")
	lineQuantityPaths = candidates("quantity", "current_quantity")
	linePricePaths    = candidates("price", "price_set")
	lineDiscountPaths = candidates("total_discount", "total_discount_set")
	lineVendorPaths   = candidates("vendor")
)

// NormalizedCustomer is the canonical internal shape of a customer payload
type NormalizedCustomer struct {
	ExternalID  string
	Email       *string
	FirstName   *string
	LastName    *string
	DisplayName string
	Company     *string
	Phone       *string
	Address1    *string
	Address2    *string
	City        *string
	Province    *string
	Zip         *string
	Country     *string
	Tags        []string
	UpdatedAt   *time.Time
}

// NormalizeCustomer resolves one value per field from a customer payload
func NormalizeCustomer(p Payload) NormalizedCustomer {
	c := NormalizedCustomer{
		ExternalID: externalID(p, customerIDPaths),
		Email:      NormalizeEmail(firstString(p, emailPaths)),
		FirstName:  firstString(p, firstNamePaths),
		LastName:   firstString(p, lastNamePaths),
		Company:    firstString(p, companyPaths),
		Phone:      firstString(p, phonePaths),
		Address1:   firstString(p, address1Paths),
		Address2:   firstString(p, address2Paths),
		City:       firstString(p, cityPaths),
		Province:   firstString(p, provincePaths),
		Zip:        firstString(p, zipPaths),
		Country:    firstString(p, countryPaths),
		UpdatedAt:  timeField(p, updatedAtPaths),
	}
	if v, ok := firstPresent(p, tagsPaths); ok {
		c.Tags = ParseTags(v)
	} else {
		c.Tags = []string{}
	}
	c.DisplayName = displayName(c)
	return c
}

// displayName prefers "First Last", then company, then email
func displayName(c NormalizedCustomer) string {
	var parts []string
	if c.FirstName != nil {
		parts = append(parts, *c.FirstName)
	}
	if c.LastName != nil {
		parts = append(parts, *c.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if c.Company != nil {
		return *c.Company
	}
	if c.Email != nil {
		return *c.Email
	}
	return ""
}

// NormalizedLineItem is the canonical shape of one order line
type NormalizedLineItem struct {
	ExternalID *string
	ProductID  *string
	VariantID  *string
	SKU        *string
	Title      *string
	Quantity   *int
	UnitPrice  *float64
	LineTotal  *float64
	Vendor     *string
}

// NormalizedOrder is the canonical internal shape of an order payload
type NormalizedOrder struct {
	ExternalID         string
	OrderNumber        string
	Name               string
	ExternalCustomerID string
	Email              *string
	Subtotal           *float64
	TotalTax           *float64
	TotalDiscounts     *float64
	TotalShipping      *float64
	TotalPrice         *float64
	Currency           *string
	ProcessedAt        *time.Time
	FinancialStatus    *string
	FulfillmentStatus  *string
	Tags               []string
	LineItems          []NormalizedLineItem
}

// NormalizeOrder resolves one value per field from an order payload
func NormalizeOrder(p Payload) NormalizedOrder {
	o := NormalizedOrder{
		ExternalID:         externalID(p, orderIDPaths),
		ExternalCustomerID: externalID(p, orderCustomerPaths),
		Email:              NormalizeEmail(firstString(p, orderEmailPaths)),
		Subtotal:           decimalField(p, subtotalPaths),
		TotalTax:           decimalField(p, totalTaxPaths),
		TotalDiscounts:     decimalField(p, totalDiscountPaths),
		TotalShipping:      decimalField(p, totalShippingPaths),
		TotalPrice:         decimalField(p, totalPricePaths),
		Currency:           firstString(p, currencyPaths),
		ProcessedAt:        timeField(p, processedAtPaths),
		FinancialStatus:    firstString(p, financialStatusPaths),
		FulfillmentStatus:  firstString(p, fulfillStatusPaths),
		Tags:               []string{},
	}
	if s := firstString(p, orderNumberPaths); s != nil {
		o.OrderNumber = *s
	}
	if s := firstString(p, orderNamePaths); s != nil {
		o.Name = *s
	}
	if v, ok := firstPresent(p, tagsPaths); ok {
		o.Tags = ParseTags(v)
	}

	if raw, ok := p["line_items"].([]interface{}); ok {
		for _, entry := range raw {
			obj, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			o.LineItems = append(o.LineItems, normalizeLineItem(Payload(obj)))
		}
	}
	return o
}

func normalizeLineItem(p Payload) NormalizedLineItem {
	li := NormalizedLineItem{
		ExternalID: optionalID(p, lineIDPaths),
		ProductID:  optionalID(p, lineProductPaths),
		VariantID:  optionalID(p, lineVariantPaths),
		SKU:        firstString(p, lineSKUPaths),
		Title:      firstString(p, lineTitlePaths),
		Vendor:     firstString(p, lineVendorPaths),
		UnitPrice:  decimalField(p, linePricePaths),
	}
	if v, ok := firstPresent(p, lineQuantityPaths); ok {
		li.Quantity = ParseInt(v)
	}
	if li.UnitPrice != nil && li.Quantity != nil {
		total := *li.UnitPrice * float64(*li.Quantity)
		if disc := decimalField(p, lineDiscountPaths); disc != nil {
			total -= *disc
		}
		total = math.Round(total*100) / 100
		li.LineTotal = &total
	}
	return li
}

func optionalID(p Payload, exs []extractor) *string {
	id := externalID(p, exs)
	if id == "" {
		return nil
	}
	return &id
}
