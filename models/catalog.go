// Package models defines the catalog exchanged with the remote source.
//
// Products and links keep every key they were decoded with, so a catalog
// that goes through fetch, checkpoint and submit comes back with only the
// price and error annotations added.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	keyProducts = "products"
	keyID       = "id"
	keyLinks    = "links"
	keyShop     = "shop"
	keyURL      = "link"
	keyPrice    = "price"
	keyError    = "error"
)

// ErrNoProducts is returned when a catalog document has no products key.
var ErrNoProducts = errors.New("catalog: key 'products' not found")

var jsonNull = []byte("null")

// Catalog is the document fetched from and submitted to the remote source.
type Catalog struct {
	Products []*Product
	Extra    map[string]json.RawMessage
}

// Product is one catalog entry. A nil ID or nil Links means the key was absent.
type Product struct {
	ID    json.RawMessage
	Links []*Link
	Error *string
	Extra map[string]json.RawMessage
}

// Link is a single shop offer for a product.
type Link struct {
	Shop  *string
	URL   *string
	Price *Price
	Error *string
	Extra map[string]json.RawMessage
}

// Price is a scraped price kept in its JSON form. The zero value encodes as null.
type Price struct {
	raw json.RawMessage
}

// IntPrice builds a price that encodes as a JSON integer.
func IntPrice(v int64) Price {
	return Price{raw: json.RawMessage(strconv.FormatInt(v, 10))}
}

// FloatPrice builds a price that encodes as a JSON number with a fractional part.
func FloatPrice(v float64) Price {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !bytes.ContainsAny([]byte(s), ".eE") {
		s += ".0"
	}
	return Price{raw: json.RawMessage(s)}
}

// IsNull reports whether the price is JSON null.
func (p Price) IsNull() bool {
	return len(p.raw) == 0 || bytes.Equal(p.raw, jsonNull)
}

func (p Price) String() string {
	if p.IsNull() {
		return "null"
	}
	return string(p.raw)
}

// MarshalJSON implements json.Marshaler.
func (p Price) MarshalJSON() ([]byte, error) {
	if p.IsNull() {
		return jsonNull, nil
	}
	return p.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, jsonNull) {
		p.raw = nil
		return nil
	}
	p.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// Terminal reports whether the link already carries a price or an error
// key. An error key counts whatever its value, null included.
func (l *Link) Terminal() bool {
	if l.Price != nil || l.Error != nil {
		return true
	}
	_, tagged := l.Extra[keyError]
	return tagged
}

// SetPrice records a successful extraction.
func (l *Link) SetPrice(p Price) {
	l.Price = &p
	l.Error = nil
	delete(l.Extra, keyError)
}

// Fail records an extraction failure: price is null and error is set.
func (l *Link) Fail(msg string) {
	l.Price = &Price{}
	l.Error = &msg
}

// SetError tags the link with a structural error and no price.
func (l *Link) SetError(msg string) {
	l.Error = &msg
}

// SetError tags the product as invalid. It reports whether the tag changed.
func (p *Product) SetError(msg string) bool {
	if p.Error != nil && *p.Error == msg {
		return false
	}
	p.Error = &msg
	return true
}

// IDString renders the product id for logs.
func (p *Product) IDString() string {
	if p.ID == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.ID, &s); err == nil {
		return s
	}
	return string(p.ID)
}

// MarshalJSON implements json.Marshaler.
func (c Catalog) MarshalJSON() ([]byte, error) {
	fields := cloneFields(c.Extra)
	products := c.Products
	if products == nil {
		products = []*Product{}
	}
	raw, err := json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("encode products: %w", err)
	}
	fields[keyProducts] = raw
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	raw, ok := fields[keyProducts]
	if !ok {
		return ErrNoProducts
	}
	delete(fields, keyProducts)

	var products []*Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return fmt.Errorf("decode products: %w", err)
	}
	for i, p := range products {
		if p == nil {
			products[i] = &Product{}
		}
	}

	*c = Catalog{Products: products, Extra: nonEmpty(fields)}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Product) MarshalJSON() ([]byte, error) {
	fields := cloneFields(p.Extra)
	if p.ID != nil {
		fields[keyID] = p.ID
	}
	if p.Links != nil {
		raw, err := json.Marshal(p.Links)
		if err != nil {
			return nil, err
		}
		fields[keyLinks] = raw
	}
	if err := putString(fields, keyError, p.Error); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler. A null links value counts as absent.
func (p *Product) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	out := Product{}
	if raw, ok := fields[keyID]; ok {
		out.ID = append(json.RawMessage(nil), bytes.TrimSpace(raw)...)
		delete(fields, keyID)
	}
	if raw, ok := fields[keyLinks]; ok {
		delete(fields, keyLinks)
		if !bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			var links []*Link
			if err := json.Unmarshal(raw, &links); err != nil {
				return fmt.Errorf("decode links: %w", err)
			}
			if links == nil {
				links = []*Link{}
			}
			for i, l := range links {
				if l == nil {
					links[i] = &Link{}
				}
			}
			out.Links = links
		}
	}
	out.Error = takeTag(fields)
	out.Extra = nonEmpty(fields)
	*p = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l Link) MarshalJSON() ([]byte, error) {
	fields := cloneFields(l.Extra)
	if err := putString(fields, keyShop, l.Shop); err != nil {
		return nil, err
	}
	if err := putString(fields, keyURL, l.URL); err != nil {
		return nil, err
	}
	if l.Price != nil {
		raw, err := l.Price.MarshalJSON()
		if err != nil {
			return nil, err
		}
		fields[keyPrice] = raw
	}
	if err := putString(fields, keyError, l.Error); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler. Null shop or link values count as absent.
func (l *Link) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	out := Link{}
	var err error
	if out.Shop, err = takeString(fields, keyShop); err != nil {
		return err
	}
	if out.URL, err = takeString(fields, keyURL); err != nil {
		return err
	}
	if raw, ok := fields[keyPrice]; ok {
		var price Price
		if err := price.UnmarshalJSON(raw); err != nil {
			return err
		}
		out.Price = &price
		delete(fields, keyPrice)
	}
	out.Error = takeTag(fields)
	out.Extra = nonEmpty(fields)
	*l = out
	return nil
}

func takeString(fields map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	delete(fields, key)
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return &s, nil
}

// takeTag removes a string error tag from fields. Any other error value,
// null included, stays in fields so it is written back unchanged.
func takeTag(fields map[string]json.RawMessage) *string {
	raw, ok := fields[keyError]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return nil
	}
	delete(fields, keyError)
	return &s
}

func putString(fields map[string]json.RawMessage, key string, value *string) error {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(*value)
	if err != nil {
		return err
	}
	fields[key] = raw
	return nil
}

func cloneFields(src map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(src)+4)
	for k, v := range src {
		out[k] = v
	}
	return out
}

func nonEmpty(fields map[string]json.RawMessage) map[string]json.RawMessage {
	if len(fields) == 0 {
		return nil
	}
	return fields
}
