package mapper

import (
	"commercetools-b2b/internal/domain"
	"github.com/samber/lo"
)

// Page converts every result of a domain page, keeping its pagination fields.
func Page[T, U any](p domain.Page[T], convert func(T) U) domain.Page[U] {
	return domain.Page[U]{
		Limit:      p.Limit,
		Offset:     p.Offset,
		Count:      p.Count,
		Total:      p.Total,
		NextCursor: p.NextCursor,
		Results:    lo.Map(p.Results, func(item T, _ int) U { return convert(item) }),
	}
}
