package economy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/star-exchange/internal/exchange"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/market"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// Wallet is the player side of a trade: a credit balance, a reputation, and a
// cargo hold. Debit, Store, and Take fail without change when they cannot
// complete.
type Wallet interface {
	Balance() uint64
	Standing() int32
	Debit(amount uint64) error
	Credit(amount uint64)
	Store(it item.Item, quantity uint32) error
	Take(name string, quantity uint32) (item.Item, error)
	Holding(name string) (item.Item, uint32)
	CanHold(it item.Item, quantity uint32) bool
	FreeCapacity() uint64
}

// AccountBook resolves player ids to wallets.
type AccountBook interface {
	Account(id string) (Wallet, bool)
}

func canAfford(w Wallet, who string, amount uint64) error {
	if w.Balance() < amount {
		return fmt.Errorf("%s needs %s cr (has %s): %w",
			who, humanize.Comma(int64(amount)), humanize.Comma(int64(w.Balance())), tradeerr.ErrInsufficientFunds)
	}
	return nil
}

func canHold(w Wallet, who string, it item.Item, quantity uint32) error {
	if !w.CanHold(it, quantity) {
		return fmt.Errorf("%s cannot carry %d %s: %w", who, quantity, it.Name, tradeerr.ErrCapacityExceeded)
	}
	return nil
}

func holds(w Wallet, who, name string, quantity uint32) (item.Item, error) {
	it, have := w.Holding(name)
	if have < quantity {
		return item.Item{}, fmt.Errorf("%s holds %d %s, needs %d: %w", who, have, name, quantity, tradeerr.ErrInsufficientStock)
	}
	return it, nil
}

// BuyFromMarket buys goods from a system market into a player's hold.
func (e *EconomySystem) BuyFromMarket(playerID, locationID, itemName string, quantity uint32, now uint64) (market.Receipt, error) {
	m, err := e.Market(locationID)
	if err != nil {
		return market.Receipt{}, err
	}
	w, err := e.account(playerID)
	if err != nil {
		return market.Receipt{}, err
	}
	q, err := m.Quote(itemName, quantity)
	if err != nil {
		return market.Receipt{}, err
	}
	if err := canAfford(w, playerID, q.Total); err != nil {
		return market.Receipt{}, err
	}
	if err := canHold(w, playerID, q.Item, quantity); err != nil {
		return market.Receipt{}, err
	}

	r, err := m.Buy(itemName, quantity, now)
	if err != nil {
		return market.Receipt{}, err
	}
	if err := w.Debit(r.Total); err != nil {
		return market.Receipt{}, err
	}
	if err := w.Store(r.Item, quantity); err != nil {
		return market.Receipt{}, err
	}
	slog.Debug("market purchase", "player", playerID, "location", locationID,
		"item", itemName, "quantity", quantity, "total", humanize.Comma(int64(r.Total)))
	return r, nil
}

// SellToMarket sells goods from a player's hold to a system market.
func (e *EconomySystem) SellToMarket(playerID, locationID, itemName string, quantity uint32, now uint64) (market.Receipt, error) {
	m, err := e.Market(locationID)
	if err != nil {
		return market.Receipt{}, err
	}
	w, err := e.account(playerID)
	if err != nil {
		return market.Receipt{}, err
	}
	it, err := holds(w, playerID, itemName, quantity)
	if err != nil {
		return market.Receipt{}, err
	}
	if _, err := m.SellQuote(it, quantity); err != nil {
		return market.Receipt{}, err
	}

	if _, err := w.Take(itemName, quantity); err != nil {
		return market.Receipt{}, err
	}
	r, err := m.Sell(it, quantity, now)
	if err != nil {
		return market.Receipt{}, err
	}
	w.Credit(r.Total)
	slog.Debug("market sale", "player", playerID, "location", locationID,
		"item", itemName, "quantity", quantity, "total", humanize.Comma(int64(r.Total)))
	return r, nil
}

// CreateBuyOrder places a standing buy at a location.
func (e *EconomySystem) CreateBuyOrder(playerID, locationID, itemName string, quantity, target uint32, now, ttl uint64) (string, error) {
	m, err := e.Market(locationID)
	if err != nil {
		return "", err
	}
	if _, err := e.account(playerID); err != nil && !errors.Is(err, ErrNoAccounts) {
		return "", err
	}
	return m.CreateBuyOrder(playerID, itemName, quantity, target, now, ttl)
}

// CreateSellOrder places a standing sell at a location.
func (e *EconomySystem) CreateSellOrder(playerID, locationID, itemName string, quantity, target uint32, now, ttl uint64) (string, error) {
	m, err := e.Market(locationID)
	if err != nil {
		return "", err
	}
	if _, err := e.account(playerID); err != nil && !errors.Is(err, ErrNoAccounts) {
		return "", err
	}
	return m.CreateSellOrder(playerID, itemName, quantity, target, now, ttl)
}

// CancelOrder cancels a player's active order at a location.
func (e *EconomySystem) CancelOrder(playerID, locationID, orderID string) error {
	m, err := e.Market(locationID)
	if err != nil {
		return err
	}
	return m.CancelOrder(orderID, playerID)
}

// orderSettler settles triggered trade orders against player accounts.
type orderSettler struct{ e *EconomySystem }

func (s orderSettler) SettleOrder(f market.Fill) error {
	o := f.Order
	w, err := s.e.account(o.OwnerID)
	if err != nil {
		return err
	}
	switch o.Side {
	case market.SideBuy:
		if err := canAfford(w, o.OwnerID, f.Total); err != nil {
			return err
		}
		if err := canHold(w, o.OwnerID, f.Item, o.Quantity); err != nil {
			return err
		}
		if err := w.Debit(f.Total); err != nil {
			return err
		}
		return w.Store(f.Item, o.Quantity)
	case market.SideSell:
		if _, err := holds(w, o.OwnerID, o.ItemName, o.Quantity); err != nil {
			return err
		}
		if _, err := w.Take(o.ItemName, o.Quantity); err != nil {
			return err
		}
		w.Credit(f.Total)
		return nil
	default:
		return fmt.Errorf("order %s has side %v: %w", o.ID, o.Side, tradeerr.ErrInvalidState)
	}
}

// ListItemForSale moves goods from the seller's hold into a new listing. The
// goods return to the seller if the listing expires unsold.
func (e *EconomySystem) ListItemForSale(req exchange.ListingRequest, now uint64) (string, error) {
	w, err := e.account(req.SellerID)
	if err != nil {
		return "", err
	}
	it, err := holds(w, req.SellerID, req.Item.Name, req.Quantity)
	if err != nil {
		return "", err
	}
	req.Item = it
	id, err := e.Player.CreateListing(req, now)
	if err != nil {
		return "", err
	}
	if _, err := w.Take(it.Name, req.Quantity); err != nil {
		return "", err
	}
	return id, nil
}

// PurchaseListing buys from a player listing, paying the seller less the
// market fee.
func (e *EconomySystem) PurchaseListing(buyerID, listingID string, quantity uint32, now uint64) (exchange.Purchase, error) {
	buyer, err := e.account(buyerID)
	if err != nil {
		return exchange.Purchase{}, err
	}
	q, err := e.Player.QuoteListing(listingID, buyerID, quantity, buyer.Standing())
	if err != nil {
		return exchange.Purchase{}, err
	}
	l, _ := e.Player.Listing(listingID)
	if err := e.checkSale(buyer, buyerID, q, l.Item); err != nil {
		return exchange.Purchase{}, err
	}

	p, err := e.Player.PurchaseListing(listingID, buyerID, quantity, buyer.Standing(), now)
	if err != nil {
		return exchange.Purchase{}, err
	}
	return p, e.settleSale(buyer, p, l.Item)
}

// PlaceBidOnListing records an offer from an existing account.
func (e *EconomySystem) PlaceBidOnListing(req exchange.BidRequest, now uint64) (string, error) {
	if _, err := e.account(req.BidderID); err != nil {
		return "", err
	}
	return e.Player.PlaceBid(req, now)
}

// AcceptBid sells to a bidder at their price. A bidder who can no longer pay
// or carry the goods leaves the bid pending.
func (e *EconomySystem) AcceptBid(bidID, sellerID string, now uint64) (exchange.Purchase, error) {
	q, err := e.Player.QuoteBid(bidID, sellerID)
	if err != nil {
		if errors.Is(err, tradeerr.ErrNotFound) {
			if _, ok := e.Player.Bid(bidID); ok {
				_ = e.Player.RejectBid(bidID, sellerID)
			}
		}
		return exchange.Purchase{}, err
	}
	buyer, err := e.account(q.BuyerID)
	if err != nil {
		return exchange.Purchase{}, err
	}
	l, _ := e.Player.Listing(q.ListingID)
	if err := e.checkSale(buyer, q.BuyerID, q, l.Item); err != nil {
		return exchange.Purchase{}, err
	}

	p, err := e.Player.AcceptBid(bidID, sellerID, now)
	if err != nil {
		return exchange.Purchase{}, err
	}
	return p, e.settleSale(buyer, p, l.Item)
}

func (e *EconomySystem) checkSale(buyer Wallet, buyerID string, q exchange.Purchase, it item.Item) error {
	if err := canAfford(buyer, buyerID, q.TotalPrice); err != nil {
		return err
	}
	return canHold(buyer, buyerID, it, q.Quantity)
}

func (e *EconomySystem) settleSale(buyer Wallet, p exchange.Purchase, it item.Item) error {
	if err := buyer.Debit(p.TotalPrice); err != nil {
		return err
	}
	if err := buyer.Store(it, p.Quantity); err != nil {
		return err
	}
	if seller, ok := e.Accounts.Account(p.SellerID); ok {
		seller.Credit(p.SellerProceeds())
	} else {
		slog.Warn("listing sale proceeds unclaimed", "seller", p.SellerID, "listing", p.ListingID)
	}
	slog.Debug("listing sale", "listing", p.ListingID, "buyer", p.BuyerID, "seller", p.SellerID,
		"item", p.ItemName, "quantity", p.Quantity, "total", humanize.Comma(int64(p.TotalPrice)),
		"negotiated", p.WasNegotiated)
	return nil
}
