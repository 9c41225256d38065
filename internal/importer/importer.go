// Package importer loads products from commercetools CSV exports. The whole
// file is validated before the first write, so a bad row leaves the catalog
// untouched.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/mapper"
	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

// Export columns.
const (
	colID          = "id"
	colKey         = "key"
	colProductType = "productType.key"
	colName        = "name.en"
	colDescription = "description.en"
	colSKU         = "variants.sku"
	colCentAmount  = "variants.prices.value.centAmount"
	colCurrency    = "variants.prices.value.currencyCode"
	colInterval    = "variants.attributes.interval"
	colImageURL    = "variants.images.url"
)

// SubscriptionProductType is the productType.key of recurring products.
const SubscriptionProductType = "subscription"

// maxIntervalDays bounds a subscription cycle to one year.
const maxIntervalDays = 365

var requiredColumns = []string{colKey, colName, colSKU, colCentAmount, colCurrency}

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads a product export and upserts one product per key. Rows
// without a key continue the previous product and may only add images.
type CSVImporter struct {
	reader    *csv.Reader
	products  ProductWriter
	projectID string
	logger    *log.Logger
}

func NewCSVImporter(r io.Reader, products ProductWriter, projectID string, logger *log.Logger) *CSVImporter {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{reader: cr, products: products, projectID: projectID, logger: logger}
}

// RowError locates a rejected row by its line in the file.
type RowError struct {
	Line int
	Key  string
	Err  error
}

func (e *RowError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d (key %q): %v", e.Line, e.Key, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Run validates every row, then upserts the products in file order. All row
// errors are reported together.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	products, err := i.parse()
	if err != nil {
		return 0, err
	}
	for n, p := range products {
		if _, err := i.products.Upsert(ctx, p); err != nil {
			return n, fmt.Errorf("upsert product %q: %w", p.Key, err)
		}
		i.logger.Printf("importer: upserted key=%s sku=%s subscription=%t", p.Key, p.SKU, p.Attributes[mapper.AttributeSubscriptionInterval] != nil)
	}
	return len(products), nil
}

type columns map[string]int

func (c columns) get(record []string, name string) string {
	pos, ok := c[name]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func (i *CSVImporter) parse() ([]domain.Product, error) {
	header, err := i.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(columns, len(header))
	for pos, name := range header {
		cols[strings.TrimSpace(name)] = pos
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header lacks columns: %s", strings.Join(missing, ", "))
	}

	var (
		products []domain.Product
		errs     []error
		skus     = map[string]int{}
		current  *domain.Product
		images   []string
	)
	flush := func() {
		if current == nil {
			return
		}
		if len(images) > 0 {
			current.Attributes["images"] = images
		}
		products = append(products, *current)
		current, images = nil, nil
	}

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := i.reader.FieldPos(0)
		key := cols.get(record, colKey)
		image := cols.get(record, colImageURL)

		if key == "" {
			switch {
			case image == "":
			case current == nil:
				errs = append(errs, &RowError{Line: line, Err: errors.New("image row before any product")})
			default:
				images = append(images, image)
			}
			continue
		}

		flush()
		p, err := i.product(cols, record)
		if err != nil {
			errs = append(errs, &RowError{Line: line, Key: key, Err: err})
			continue
		}
		if first, dup := skus[p.SKU]; dup {
			errs = append(errs, &RowError{Line: line, Key: key, Err: fmt.Errorf("sku %s already used on line %d", p.SKU, first)})
			continue
		}
		skus[p.SKU] = line
		current = p
		if image != "" {
			images = append(images, image)
		}
	}
	flush()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return products, nil
}

// product builds a product from a keyed row. Subscription products need an
// interval; other products must not carry one.
func (i *CSVImporter) product(cols columns, record []string) (*domain.Product, error) {
	p := &domain.Product{
		ID:          cols.get(record, colID),
		ProjectID:   i.projectID,
		Key:         cols.get(record, colKey),
		SKU:         cols.get(record, colSKU),
		Name:        cols.get(record, colName),
		Description: cols.get(record, colDescription),
		Attributes:  map[string]interface{}{},
	}
	if p.Name == "" || p.SKU == "" {
		return nil, errors.New("name and sku required")
	}
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return nil, fmt.Errorf("id %q: %w", p.ID, err)
		}
	}

	cents, err := strconv.ParseInt(cols.get(record, colCentAmount), 10, 64)
	if err != nil || cents <= 0 {
		return nil, fmt.Errorf("centAmount %q is not a positive integer", cols.get(record, colCentAmount))
	}
	p.PriceCents = cents
	unit, err := currency.ParseISO(cols.get(record, colCurrency))
	if err != nil {
		return nil, fmt.Errorf("currency %q: %w", cols.get(record, colCurrency), err)
	}
	p.Currency = unit.String()

	productType := cols.get(record, colProductType)
	raw := cols.get(record, colInterval)
	switch {
	case strings.EqualFold(productType, SubscriptionProductType):
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 || days > maxIntervalDays {
			return nil, fmt.Errorf("subscription interval %q must be 1 to %d days", raw, maxIntervalDays)
		}
		p.Attributes[mapper.AttributeSubscriptionInterval] = days
	case raw != "":
		return nil, fmt.Errorf("interval %q set on %q product", raw, productType)
	}
	return p, nil
}
