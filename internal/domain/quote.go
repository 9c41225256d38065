package domain

import "time"

type QuoteRequestState string

const (
	QuoteRequestSubmitted  QuoteRequestState = "Submitted"
	QuoteRequestInProgress QuoteRequestState = "InProgress"
	QuoteRequestSent       QuoteRequestState = "Sent"
	QuoteRequestAccepted   QuoteRequestState = "Accepted"
	QuoteRequestRejected   QuoteRequestState = "Rejected"
	QuoteRequestCancelled  QuoteRequestState = "Cancelled"
	QuoteRequestClosed     QuoteRequestState = "Closed"
)

var quoteRequestTransitions = map[QuoteRequestState][]QuoteRequestState{
	QuoteRequestSubmitted:  {QuoteRequestInProgress, QuoteRequestSent, QuoteRequestCancelled, QuoteRequestClosed},
	QuoteRequestInProgress: {QuoteRequestSent, QuoteRequestCancelled, QuoteRequestClosed},
	QuoteRequestSent:       {QuoteRequestAccepted, QuoteRequestRejected, QuoteRequestClosed, QuoteRequestCancelled, QuoteRequestInProgress},
}

// CanTransition reports whether the request may move to next.
func (s QuoteRequestState) CanTransition(next QuoteRequestState) bool {
	for _, allowed := range quoteRequestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid reports whether s is a known quote request state.
func (s QuoteRequestState) IsValid() bool {
	switch s {
	case QuoteRequestSubmitted, QuoteRequestInProgress, QuoteRequestSent, QuoteRequestAccepted,
		QuoteRequestRejected, QuoteRequestCancelled, QuoteRequestClosed:
		return true
	}
	return false
}

type QuoteState string

const (
	QuotePending                  QuoteState = "Pending"
	QuoteAccepted                 QuoteState = "Accepted"
	QuoteDeclined                 QuoteState = "Declined"
	QuoteDeclinedForRenegotiation QuoteState = "DeclinedForRenegotiation"
	QuoteWithdrawn                QuoteState = "Withdrawn"
	QuoteFailed                   QuoteState = "Failed"
)

// IsValid reports whether s is a known quote state.
func (s QuoteState) IsValid() bool {
	switch s {
	case QuotePending, QuoteAccepted, QuoteDeclined, QuoteDeclinedForRenegotiation, QuoteWithdrawn, QuoteFailed:
		return true
	}
	return false
}

// QuoteRequest is a buyer's ask for negotiated pricing over a frozen cart snapshot.
type QuoteRequest struct {
	ID                    string            `json:"id"`
	ProjectID             string            `json:"-"`
	Version               int               `json:"version"`
	CustomerID            string            `json:"customerId"`
	CustomerEmail         string            `json:"customerEmail,omitempty"`
	BusinessUnitKey       string            `json:"businessUnitKey"`
	StoreKey              string            `json:"storeKey"`
	CartID                string            `json:"cartId"`
	BuyerComment          string            `json:"comment,omitempty"`
	State                 QuoteRequestState `json:"quoteRequestState"`
	Currency              string            `json:"currency"`
	LineItems             []LineItem        `json:"lineItems"`
	ItemShippingAddresses []Address         `json:"itemShippingAddresses"`
	ShippingAddress       *Address          `json:"shippingAddress,omitempty"`
	BillingAddress        *Address          `json:"billingAddress,omitempty"`
	TotalCents            int64             `json:"totalCents"`
	Quote                 *Quote            `json:"quote,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	LastModifiedAt        time.Time         `json:"lastModifiedAt"`
}

// Quote is the seller's response to a quote request, itself negotiable.
type Quote struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"-"`
	Version         int        `json:"version"`
	QuoteRequestID  string     `json:"quoteRequestId"`
	CustomerID      string     `json:"customerId"`
	BusinessUnitKey string     `json:"businessUnitKey"`
	StoreKey        string     `json:"storeKey"`
	State           QuoteState `json:"quoteState"`
	BuyerComment    string     `json:"buyerComment,omitempty"`
	SellerComment   string     `json:"sellerComment,omitempty"`
	ValidTo         *time.Time `json:"validTo,omitempty"`
	QuotationCartID string     `json:"quotationCartId,omitempty"`
	Currency        string     `json:"currency"`
	LineItems       []LineItem `json:"lineItems"`
	TotalCents      int64      `json:"totalCents"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastModifiedAt  time.Time  `json:"lastModifiedAt"`
}

// Expired reports whether the quote's validity window has passed.
func (q Quote) Expired(now time.Time) bool {
	return q.ValidTo != nil && now.After(*q.ValidTo)
}

// QuoteFilter narrows quote listings. States may mix QuoteRequestState and
// QuoteState values; the two are matched against their own entity.
type QuoteFilter struct {
	CustomerID      string
	BusinessUnitKey string
	IDs             []string
	States          []string
	Limit           int
	Offset          int
}

// SplitStates partitions mixed state names into request and quote states.
// Unknown names are returned separately.
func (f QuoteFilter) SplitStates() (requestStates []QuoteRequestState, quoteStates []QuoteState, unknown []string) {
	for _, s := range f.States {
		matched := false
		if rs := QuoteRequestState(s); rs.IsValid() {
			requestStates = append(requestStates, rs)
			matched = true
		}
		if qs := QuoteState(s); qs.IsValid() {
			quoteStates = append(quoteStates, qs)
			matched = true
		}
		if !matched {
			unknown = append(unknown, s)
		}
	}
	return requestStates, quoteStates, unknown
}
