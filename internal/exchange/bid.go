package exchange

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/talgya/star-exchange/internal/tradeerr"
)

// BidStatus only moves out of Pending.
type BidStatus uint8

const (
	BidPending BidStatus = iota
	BidAccepted
	BidRejected
	BidExpired
	BidCanceled
)

func (s BidStatus) String() string {
	switch s {
	case BidPending:
		return "Pending"
	case BidAccepted:
		return "Accepted"
	case BidRejected:
		return "Rejected"
	case BidExpired:
		return "Expired"
	case BidCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Bid is a counter-offer against a negotiable listing.
type Bid struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	BidderID   string    `json:"bidder_id"`
	BidderName string    `json:"bidder_name"`
	BidAmount  uint32    `json:"bid_amount"` // Per unit
	Quantity   uint32    `json:"quantity"`
	Message    string    `json:"message,omitempty"`
	Status     BidStatus `json:"status"`
	CreatedAt  uint64    `json:"created_at"`
	ExpiresAt  *uint64   `json:"expires_at,omitempty"`
}

// Total is the full amount offered.
func (b Bid) Total() uint64 {
	return uint64(b.BidAmount) * uint64(b.Quantity)
}

// BidRequest describes a new bid. TTL is in seconds; zero never expires.
type BidRequest struct {
	ListingID  string
	BidderID   string
	BidderName string
	BidAmount  uint32
	Quantity   uint32
	Message    string
	TTL        uint64
}

// PlaceBid records a pending offer on a negotiable listing.
func (pm *PlayerMarket) PlaceBid(req BidRequest, now uint64) (string, error) {
	l, ok := pm.Listings[req.ListingID]
	if !ok {
		return "", fmt.Errorf("bid on listing %s: %w", req.ListingID, tradeerr.ErrNotFound)
	}
	if !l.Negotiable {
		return "", fmt.Errorf("bid on listing %s: not negotiable: %w", l.ID, tradeerr.ErrInvalidState)
	}
	if req.BidderID == l.SellerID {
		return "", fmt.Errorf("bid on own listing %s: %w", l.ID, tradeerr.ErrUnauthorized)
	}
	if req.Quantity == 0 {
		return "", fmt.Errorf("bid on listing %s: zero quantity: %w", l.ID, tradeerr.ErrInvalidState)
	}
	if req.Quantity > l.Quantity {
		return "", fmt.Errorf("bid %d on listing %s (have %d): %w",
			req.Quantity, l.ID, l.Quantity, tradeerr.ErrInsufficientStock)
	}
	b := &Bid{
		ID:         uuid.NewString(),
		ListingID:  l.ID,
		BidderID:   req.BidderID,
		BidderName: req.BidderName,
		BidAmount:  req.BidAmount,
		Quantity:   req.Quantity,
		Message:    req.Message,
		Status:     BidPending,
		CreatedAt:  now,
		ExpiresAt:  expiry(now, req.TTL),
	}
	pm.Bids[b.ID] = b
	return b.ID, nil
}

// Bid returns a copy of a bid.
func (pm *PlayerMarket) Bid(id string) (Bid, bool) {
	b, ok := pm.Bids[id]
	if !ok {
		return Bid{}, false
	}
	return *b, true
}

// BidsFor returns copies of every bid on a listing.
func (pm *PlayerMarket) BidsFor(listingID string) []Bid {
	var out []Bid
	for _, b := range pm.Bids {
		if b.ListingID == listingID {
			out = append(out, *b)
		}
	}
	return out
}

func (pm *PlayerMarket) pendingBid(id string) (*Bid, error) {
	b, ok := pm.Bids[id]
	if !ok {
		return nil, fmt.Errorf("bid %s: %w", id, tradeerr.ErrNotFound)
	}
	if b.Status != BidPending {
		return nil, fmt.Errorf("bid %s is %s: %w", id, b.Status, tradeerr.ErrInvalidState)
	}
	return b, nil
}

// QuoteBid validates acceptance of a bid by sellerID and returns the receipt
// it would produce. A listing that sold out since the bid was placed leaves the
// bid pending; a listing that vanished any other way rejects it.
func (pm *PlayerMarket) QuoteBid(id, sellerID string) (Purchase, error) {
	b, err := pm.pendingBid(id)
	if err != nil {
		return Purchase{}, err
	}
	l, ok := pm.Listings[b.ListingID]
	if !ok {
		if seller, sold := pm.soldOutSeller(b.ListingID); sold {
			if seller != sellerID {
				return Purchase{}, fmt.Errorf("accept bid %s: %w", id, tradeerr.ErrUnauthorized)
			}
			return Purchase{}, fmt.Errorf("accept bid %s: listing %s sold out: %w",
				id, b.ListingID, tradeerr.ErrInsufficientStock)
		}
		return Purchase{}, fmt.Errorf("accept bid %s: listing %s: %w", id, b.ListingID, tradeerr.ErrNotFound)
	}
	if l.SellerID != sellerID {
		return Purchase{}, fmt.Errorf("accept bid %s: %w", id, tradeerr.ErrUnauthorized)
	}
	if b.Quantity > l.Quantity {
		return Purchase{}, fmt.Errorf("accept bid %s for %d (have %d): %w",
			id, b.Quantity, l.Quantity, tradeerr.ErrInsufficientStock)
	}
	return pm.receipt(l, b.BidderID, b.Quantity, b.BidAmount, true), nil
}

// AcceptBid sells the bid's quantity at the bid price.
func (pm *PlayerMarket) AcceptBid(id, sellerID string, now uint64) (Purchase, error) {
	p, err := pm.QuoteBid(id, sellerID)
	if err != nil {
		// The bid itself exists, so NotFound means its listing is gone.
		if b, ok := pm.Bids[id]; ok && b.Status == BidPending && errors.Is(err, tradeerr.ErrNotFound) {
			b.Status = BidRejected
		}
		return Purchase{}, err
	}
	pm.Bids[id].Status = BidAccepted
	return pm.commit(p, now), nil
}

// RejectBid declines a pending bid. Only the listing's seller may reject while
// the listing exists.
func (pm *PlayerMarket) RejectBid(id, sellerID string) error {
	b, err := pm.pendingBid(id)
	if err != nil {
		return err
	}
	if seller, ok := pm.sellerOf(b.ListingID); ok && seller != sellerID {
		return fmt.Errorf("reject bid %s: %w", id, tradeerr.ErrUnauthorized)
	}
	b.Status = BidRejected
	return nil
}

// CancelBid withdraws a pending bid on behalf of its bidder.
func (pm *PlayerMarket) CancelBid(id, bidderID string) error {
	b, ok := pm.Bids[id]
	if !ok {
		return fmt.Errorf("cancel bid %s: %w", id, tradeerr.ErrNotFound)
	}
	if b.BidderID != bidderID {
		return fmt.Errorf("cancel bid %s: %w", id, tradeerr.ErrUnauthorized)
	}
	if b.Status != BidPending {
		return fmt.Errorf("cancel bid %s is %s: %w", id, b.Status, tradeerr.ErrInvalidState)
	}
	b.Status = BidCanceled
	return nil
}

func (pm *PlayerMarket) sellerOf(listingID string) (string, bool) {
	if l, ok := pm.Listings[listingID]; ok {
		return l.SellerID, true
	}
	return pm.soldOutSeller(listingID)
}
