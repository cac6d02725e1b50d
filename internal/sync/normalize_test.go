package sync

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestDecodePayloadRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{
		`not json`, `null`, `[1,2]`,
		`{"id":"77"} this is not json`,
		`{"id":"77"}{"id":"78"}`,
		`{"id":"77"} ]`,
	} {
		if _, err := DecodePayload([]byte(raw)); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("DecodePayload(%s): expected ErrInvalidPayload, got %v", raw, err)
		}
	}
}

func TestDecodePayloadAllowsTrailingWhitespace(t *testing.T) {
	p, err := DecodePayload([]byte("{\"id\":77}\n\t "))
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p["id"] != json.Number("77") {
		t.Errorf("id = %#v", p["id"])
	}
}

func TestParseDecimal(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	cases := []struct {
		in   interface{}
		want *float64
	}{
		{json.Number("19.99"), f(19.99)},
		{"  7.5 ", f(7.5)},
		{"0", f(0)},
		{3, f(3)},
		{"", nil},
		{"twelve", nil},
		{nil, nil},
		{true, nil},
		{map[string]interface{}{"amount": "4.20"}, f(4.2)},
		{map[string]interface{}{"shop_money": map[string]interface{}{"amount": json.Number("8")}}, f(8)},
	}
	for _, c := range cases {
		got := ParseDecimal(c.in)
		if (got == nil) != (c.want == nil) || (got != nil && *got != *c.want) {
			t.Errorf("ParseDecimal(%#v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseIntRejectsFractions(t *testing.T) {
	if n := ParseInt("2"); n == nil || *n != 2 {
		t.Errorf("ParseInt(\"2\") = %v", n)
	}
	if n := ParseInt("2.5"); n != nil {
		t.Errorf("ParseInt(\"2.5\") = %d, want nil", *n)
	}
}

func TestParseTags(t *testing.T) {
	got := ParseTags("Wholesale, vip,,  wholesale , Spa ")
	if want := []string{"Wholesale", "vip", "Spa"}; !reflect.DeepEqual(got, want) {
		t.Errorf("string tags = %v, want %v", got, want)
	}
	got = ParseTags([]interface{}{"a", " b ", "", "A", json.Number("7")})
	if want := []string{"a", "b", "7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("array tags = %v, want %v", got, want)
	}
	if got := ParseTags(nil); len(got) != 0 {
		t.Errorf("nil tags = %v", got)
	}
}

func TestNormalizeCustomerCandidatePrecedence(t *testing.T) {
	p, err := DecodePayload([]byte(`{
		"admin_graphql_api_id": "gid://shopify/Customer/4242",
		"firstName": "Ana",
		"email": "",
		"contact_email": "Ana@Example.com",
		"default_address": {"company": "Ana's Salon", "city": " Reno ", "province_code": "NV", "province": "Nevada"}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	c := NormalizeCustomer(p)
	if c.ExternalID != "4242" {
		t.Errorf("external id = %q", c.ExternalID)
	}
	if c.Email == nil || *c.Email != "ana@example.com" {
		t.Errorf("email = %v", c.Email)
	}
	if c.DisplayName != "Ana" {
		t.Errorf("display name = %q", c.DisplayName)
	}
	if c.City == nil || *c.City != "Reno" {
		t.Errorf("city = %v", c.City)
	}
	if c.Province == nil || *c.Province != "NV" {
		t.Errorf("province = %v", c.Province)
	}
	if c.Tags == nil || len(c.Tags) != 0 {
		t.Errorf("absent tags should be an empty list, got %#v", c.Tags)
	}
}

func TestDisplayNameFallsBackToCompanyThenEmail(t *testing.T) {
	company := "Blowout Bar"
	email := "hi@blowout.example"
	if got := displayName(NormalizedCustomer{Company: &company, Email: &email}); got != company {
		t.Errorf("got %q, want company", got)
	}
	if got := displayName(NormalizedCustomer{Email: &email}); got != email {
		t.Errorf("got %q, want email", got)
	}
}

func TestNormalizeOrderLineItems(t *testing.T) {
	p, err := DecodePayload([]byte(`{
		"id": 5150,
		"customer": {"id": 12},
		"total_price_set": {"shop_money": {"amount": "99.00"}},
		"line_items": [
			{"id": 1, "product_id": 10, "variant_id": 11, "sku": " SH-1 ", "title": "Shampoo", "quantity": "3", "price": "9.99", "vendor": "Lux"},
			"garbage",
			{"id": 2, "quantity": 1.5, "price": "bad"}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	o := NormalizeOrder(p)
	if o.ExternalID != "5150" || o.ExternalCustomerID != "12" {
		t.Fatalf("ids = %q / %q", o.ExternalID, o.ExternalCustomerID)
	}
	if o.TotalPrice == nil || *o.TotalPrice != 99 {
		t.Errorf("total = %v", o.TotalPrice)
	}
	if len(o.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(o.LineItems))
	}
	li := o.LineItems[0]
	if *li.SKU != "SH-1" || *li.ProductID != "10" || *li.VariantID != "11" || *li.Vendor != "Lux" {
		t.Errorf("line 0 = %+v", li)
	}
	if li.LineTotal == nil || *li.LineTotal != 29.97 {
		t.Errorf("line total = %v", li.LineTotal)
	}
	bad := o.LineItems[1]
	if bad.Quantity != nil || bad.UnitPrice != nil || bad.LineTotal != nil {
		t.Errorf("invalid numerics should be nil: %+v", bad)
	}
}
