package mapper

import (
	"sort"
	"strings"

	"commercetools-b2b/internal/domain"
)

// Product attribute names with meaning to the order flow.
const (
	AttributeSubscriptionInterval = "interval"
	attributeImages               = "images"
)

// DefaultProduct renders products with a single master variant.
type DefaultProduct struct{}

func (DefaultProduct) Product(p domain.Product) Product {
	name := map[string]string{"en": p.Name}
	var desc map[string]string
	if p.Description != "" {
		desc = map[string]string{"en": p.Description}
	}
	var slug map[string]string
	if p.Key != "" {
		slug = map[string]string{"en": strings.ReplaceAll(strings.ToLower(p.Key), " ", "-")}
	}

	attrs := make([]Attribute, 0, len(p.Attributes))
	for k, v := range p.Attributes {
		if k == attributeImages {
			continue
		}
		attrs = append(attrs, Attribute{Name: k, Value: v})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })

	return Product{
		ID:             p.ID,
		Key:            p.Key,
		Version:        1,
		CreatedAt:      p.CreatedAt,
		LastModifiedAt: p.CreatedAt,
		Name:           name,
		Description:    desc,
		Slug:           slug,
		MasterVariant: Variant{
			ID:         1,
			SKU:        p.SKU,
			Prices:     []Price{{Value: centPrecision(p.Currency, p.PriceCents)}},
			Images:     images(stringList(p.Attributes[attributeImages])),
			Assets:     []interface{}{},
			Attributes: attrs,
		},
		Variants:  []Variant{},
		Published: true,
	}
}

// SubscriptionInterval reads the "interval" attribute as a day count.
// Non-positive values do not make a product a subscription.
func (DefaultProduct) SubscriptionInterval(p domain.Product) (int, bool) {
	days, ok := intAttribute(p.Attributes, AttributeSubscriptionInterval)
	if !ok || days <= 0 {
		return 0, false
	}
	return days, true
}
