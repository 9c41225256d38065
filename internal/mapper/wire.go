package mapper

import "time"

type Money struct {
	Type           string `json:"type"`
	CurrencyCode   string `json:"currencyCode"`
	CentAmount     int64  `json:"centAmount"`
	FractionDigits int    `json:"fractionDigits"`
}

func centPrecision(currency string, cents int64) Money {
	return Money{Type: "centPrecision", CurrencyCode: currency, CentAmount: cents, FractionDigits: 2}
}

type Price struct {
	ID    string `json:"id,omitempty"`
	Value Money  `json:"value"`
}

type Image struct {
	URL   string `json:"url"`
	Label string `json:"label,omitempty"`
}

type Reference struct {
	TypeID string `json:"typeId,omitempty"`
	ID     string `json:"id,omitempty"`
	Key    string `json:"key,omitempty"`
}

type Actor struct {
	ClientID         string     `json:"clientId,omitempty"`
	IsPlatformClient bool       `json:"isPlatformClient"`
	Customer         *Reference `json:"customer,omitempty"`
}

// auditClientID is the API client id reported in createdBy / lastModifiedBy.
const auditClientID = "G-q8-RwsnGEU-laJdMCAWR6Z"

func actorFor(customerID string) *Actor {
	if customerID == "" {
		return nil
	}
	return &Actor{ClientID: auditClientID, Customer: &Reference{TypeID: "customer", ID: customerID}}
}

type Variant struct {
	ID         int           `json:"id"`
	SKU        string        `json:"sku"`
	Prices     []Price       `json:"prices"`
	Images     []Image       `json:"images"`
	Assets     []interface{} `json:"assets"`
	Attributes []Attribute   `json:"attributes"`
}

type Attribute struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

type Address struct {
	ID           string `json:"id,omitempty"`
	Key          string `json:"key,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	StreetName   string `json:"streetName,omitempty"`
	StreetNumber string `json:"streetNumber,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Department   string `json:"department,omitempty"`
}

type ItemShippingTarget struct {
	AddressKey string `json:"addressKey"`
	Quantity   int    `json:"quantity"`
}

type ItemShippingDetails struct {
	Targets []ItemShippingTarget `json:"targets"`
	Valid   bool                 `json:"valid"`
}

type CustomFields struct {
	Type   *Reference             `json:"type,omitempty"`
	Fields map[string]interface{} `json:"fields"`
}

type LineItem struct {
	ID                  string               `json:"id"`
	ProductID           string               `json:"productId"`
	ProductKey          string               `json:"productKey,omitempty"`
	ProductSlug         map[string]string    `json:"productSlug,omitempty"`
	Name                map[string]string    `json:"name"`
	Variant             Variant              `json:"variant"`
	Price               Price                `json:"price"`
	DiscountedPrice     *Money               `json:"discountedPrice,omitempty"`
	Quantity            int                  `json:"quantity"`
	TotalPrice          Money                `json:"totalPrice"`
	DistributionChannel *Reference           `json:"distributionChannel,omitempty"`
	ShippingDetails     *ItemShippingDetails `json:"shippingDetails,omitempty"`
	LineItemMode        string               `json:"lineItemMode"`
	PriceMode           string               `json:"priceMode"`
	Custom              *CustomFields        `json:"custom,omitempty"`
	AddedAt             time.Time            `json:"addedAt"`
}

type Cart struct {
	Type                            string        `json:"type"`
	ID                              string        `json:"id"`
	Version                         int           `json:"version"`
	CreatedAt                       time.Time     `json:"createdAt"`
	LastModifiedAt                  time.Time     `json:"lastModifiedAt"`
	CreatedBy                       *Actor        `json:"createdBy,omitempty"`
	LastModifiedBy                  *Actor        `json:"lastModifiedBy,omitempty"`
	CustomerID                      string        `json:"customerId,omitempty"`
	CustomerEmail                   string        `json:"customerEmail,omitempty"`
	AnonymousID                     string        `json:"anonymousId,omitempty"`
	BusinessUnit                    *Reference    `json:"businessUnit,omitempty"`
	Store                           *Reference    `json:"store,omitempty"`
	Country                         string        `json:"country,omitempty"`
	Locale                          string        `json:"locale,omitempty"`
	LineItems                       []LineItem    `json:"lineItems"`
	CartState                       string        `json:"cartState"`
	TotalPrice                      Money         `json:"totalPrice"`
	TotalLineItemQuantity           int           `json:"totalLineItemQuantity,omitempty"`
	ShippingAddress                 *Address      `json:"shippingAddress,omitempty"`
	BillingAddress                  *Address      `json:"billingAddress,omitempty"`
	ItemShippingAddresses           []Address     `json:"itemShippingAddresses"`
	ShippingMode                    string        `json:"shippingMode"`
	InventoryMode                   string        `json:"inventoryMode"`
	TaxMode                         string        `json:"taxMode"`
	Origin                          string        `json:"origin"`
	DeleteDaysAfterLastModification int           `json:"deleteDaysAfterLastModification,omitempty"`
	Custom                          *CustomFields `json:"custom,omitempty"`
}

type ReturnItem struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	LineItemID    string `json:"lineItemId"`
	Quantity      int    `json:"quantity"`
	Comment       string `json:"comment,omitempty"`
	ShipmentState string `json:"shipmentState"`
	PaymentState  string `json:"paymentState"`
}

type ReturnInfo struct {
	ReturnTrackingID string       `json:"returnTrackingId"`
	ReturnDate       time.Time    `json:"returnDate"`
	Items            []ReturnItem `json:"items"`
}

type Order struct {
	Type                  string        `json:"type"`
	ID                    string        `json:"id"`
	Version               int           `json:"version"`
	OrderNumber           string        `json:"orderNumber"`
	PurchaseOrderNumber   string        `json:"purchaseOrderNumber,omitempty"`
	CreatedAt             time.Time     `json:"createdAt"`
	LastModifiedAt        time.Time     `json:"lastModifiedAt"`
	CustomerID            string        `json:"customerId,omitempty"`
	CustomerEmail         string        `json:"customerEmail,omitempty"`
	BusinessUnit          *Reference    `json:"businessUnit,omitempty"`
	Store                 *Reference    `json:"store,omitempty"`
	Cart                  *Reference    `json:"cart,omitempty"`
	Country               string        `json:"country,omitempty"`
	Locale                string        `json:"locale,omitempty"`
	LineItems             []LineItem    `json:"lineItems"`
	TotalPrice            Money         `json:"totalPrice"`
	OrderState            string        `json:"orderState"`
	State                 *Reference    `json:"state,omitempty"`
	ShippingAddress       *Address      `json:"shippingAddress,omitempty"`
	BillingAddress        *Address      `json:"billingAddress,omitempty"`
	ItemShippingAddresses []Address     `json:"itemShippingAddresses"`
	ReturnInfo            []ReturnInfo  `json:"returnInfo"`
	InventoryMode         string        `json:"inventoryMode"`
	Origin                string        `json:"origin"`
	Custom                *CustomFields `json:"custom,omitempty"`
}

type QuoteRequest struct {
	Type                  string     `json:"type"`
	ID                    string     `json:"id"`
	Version               int        `json:"version"`
	CreatedAt             time.Time  `json:"createdAt"`
	LastModifiedAt        time.Time  `json:"lastModifiedAt"`
	QuoteRequestState     string     `json:"quoteRequestState"`
	Comment               string     `json:"comment,omitempty"`
	Customer              Reference  `json:"customer"`
	BusinessUnit          *Reference `json:"businessUnit,omitempty"`
	Store                 *Reference `json:"store,omitempty"`
	Cart                  *Reference `json:"cart,omitempty"`
	LineItems             []LineItem `json:"lineItems"`
	TotalPrice            Money      `json:"totalPrice"`
	ShippingAddress       *Address   `json:"shippingAddress,omitempty"`
	BillingAddress        *Address   `json:"billingAddress,omitempty"`
	ItemShippingAddresses []Address  `json:"itemShippingAddresses"`
	Quote                 *Quote     `json:"quote,omitempty"`
}

type Quote struct {
	Type           string     `json:"type"`
	ID             string     `json:"id"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastModifiedAt time.Time  `json:"lastModifiedAt"`
	QuoteState     string     `json:"quoteState"`
	QuoteRequest   Reference  `json:"quoteRequest"`
	Customer       Reference  `json:"customer"`
	BusinessUnit   *Reference `json:"businessUnit,omitempty"`
	Store          *Reference `json:"store,omitempty"`
	BuyerComment   string     `json:"buyerComment,omitempty"`
	SellerComment  string     `json:"sellerComment,omitempty"`
	ValidTo        *time.Time `json:"validTo,omitempty"`
	QuotationCart  *Reference `json:"quotationCart,omitempty"`
	LineItems      []LineItem `json:"lineItems"`
	TotalPrice     Money      `json:"totalPrice"`
}

type Customer struct {
	ID                       string        `json:"id"`
	Version                  int           `json:"version"`
	CreatedAt                time.Time     `json:"createdAt"`
	LastModifiedAt           time.Time     `json:"lastModifiedAt"`
	CreatedBy                *Actor        `json:"createdBy,omitempty"`
	Email                    string        `json:"email"`
	FirstName                string        `json:"firstName,omitempty"`
	LastName                 string        `json:"lastName,omitempty"`
	DateOfBirth              string        `json:"dateOfBirth,omitempty"`
	Password                 string        `json:"password,omitempty"`
	Addresses                []Address     `json:"addresses"`
	DefaultShippingAddressID string        `json:"defaultShippingAddressId,omitempty"`
	DefaultBillingAddressID  string        `json:"defaultBillingAddressId,omitempty"`
	ShippingAddressIDs       []string      `json:"shippingAddressIds"`
	BillingAddressIDs        []string      `json:"billingAddressIds"`
	IsEmailVerified          bool          `json:"isEmailVerified"`
	Stores                   []interface{} `json:"stores"`
	AuthenticationMode       string        `json:"authenticationMode"`
}

type Product struct {
	ID             string            `json:"id"`
	Key            string            `json:"key,omitempty"`
	Version        int               `json:"version"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastModifiedAt time.Time         `json:"lastModifiedAt"`
	Name           map[string]string `json:"name"`
	Description    map[string]string `json:"description,omitempty"`
	Slug           map[string]string `json:"slug,omitempty"`
	MasterVariant  Variant           `json:"masterVariant"`
	Variants       []Variant         `json:"variants"`
	Published      bool              `json:"published"`
}
