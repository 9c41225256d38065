package domain

import (
	"strings"
	"time"
)

type Product struct {
	ID          string                 `json:"id"`
	ProjectID   string                 `json:"-"`
	Key         string                 `json:"key"`
	SKU         string                 `json:"sku"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	PriceCents  int64                  `json:"priceCents"`
	Currency    string                 `json:"currency"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Snapshot captures the display data frozen onto a line item when it is added.
func (p Product) Snapshot() map[string]interface{} {
	slug := strings.TrimSpace(p.Key)
	if slug == "" {
		slug = strings.ReplaceAll(strings.ToLower(p.Name), " ", "-")
	}
	snap := map[string]interface{}{
		"productKey":  p.Key,
		"productName": p.Name,
		"sku":         p.SKU,
		"productSlug": slug,
		"priceCents":  p.PriceCents,
		"currency":    p.Currency,
	}
	if images, ok := p.Attributes["images"]; ok {
		snap["images"] = images
	}
	return snap
}
