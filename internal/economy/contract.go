package economy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/talgya/star-exchange/internal/exchange"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// Contract rewards are escrowed from the issuer when the contract is posted,
// paid to the assignees on completion, and refunded when it is canceled,
// failed, or lapses. A disputed contract keeps its escrow.

// PostContract escrows the issuer's reward and posts the contract. Repeated
// reward lines for one good are merged before anything is checked.
func (e *EconomySystem) PostContract(req exchange.ContractRequest, now uint64) (string, error) {
	issuer, err := e.account(req.IssuerID)
	if err != nil {
		return "", err
	}
	rewards, err := mergeStacks(req.RewardItems)
	if err != nil {
		return "", err
	}
	req.RewardItems = rewards
	if err := canAfford(issuer, req.IssuerID, uint64(req.RewardCredits)); err != nil {
		return "", err
	}
	for _, s := range rewards {
		if _, err := holds(issuer, req.IssuerID, s.Item.Name, s.Quantity); err != nil {
			return "", err
		}
	}

	if err := issuer.Debit(uint64(req.RewardCredits)); err != nil {
		return "", err
	}
	for _, s := range rewards {
		if _, err := issuer.Take(s.Item.Name, s.Quantity); err != nil {
			return "", err
		}
	}
	id := e.Player.CreateContract(req, now)
	slog.Info("contract posted", "contract", id, "issuer", req.IssuerID,
		"title", req.Title, "reward", humanize.Comma(int64(req.RewardCredits)))
	return id, nil
}

// AcceptContract assigns a player to an open contract.
func (e *EconomySystem) AcceptContract(id, playerID string, now uint64) error {
	if _, err := e.account(playerID); err != nil {
		return err
	}
	return e.Player.AcceptContract(id, playerID, now)
}

// DeliverToContract hands delivered goods from the player to the issuer and
// then logs the delivery. Everything is checked before anything moves.
func (e *EconomySystem) DeliverToContract(id, playerID, message string, delivered []exchange.Delivery, now uint64) error {
	c, ok := e.Player.Contract(id)
	if !ok {
		return fmt.Errorf("contract %s: %w", id, tradeerr.ErrNotFound)
	}
	if err := e.Player.CheckContractProgress(id, playerID); err != nil {
		return err
	}
	from, err := e.account(playerID)
	if err != nil {
		return err
	}
	to, err := e.account(c.IssuerID)
	if err != nil {
		return err
	}

	var lines []exchange.Stack
	for _, d := range delivered {
		lines = append(lines, exchange.Stack{Item: item.Item{Name: d.ItemName}, Quantity: d.Quantity})
	}
	lines, err = mergeStacks(lines)
	if err != nil {
		return err
	}
	for i, l := range lines {
		it, err := holds(from, playerID, l.Item.Name, l.Quantity)
		if err != nil {
			return err
		}
		lines[i].Item = it
	}
	if playerID != c.IssuerID {
		if err := canHoldAll(to, c.IssuerID, lines); err != nil {
			return err
		}
		for _, l := range lines {
			it, err := from.Take(l.Item.Name, l.Quantity)
			if err != nil {
				return err
			}
			if err := to.Store(it, l.Quantity); err != nil {
				return err
			}
		}
	}
	return e.Player.UpdateContractProgress(id, playerID, message, delivered, now)
}

// CompleteContract closes a contract and pays the escrowed reward. Credits
// split evenly across assignees with any remainder to the first; reward goods
// go to the first assignee.
func (e *EconomySystem) CompleteContract(id, issuerID string, now uint64) (exchange.Contract, error) {
	c, ok := e.Player.Contract(id)
	if !ok {
		return exchange.Contract{}, fmt.Errorf("contract %s: %w", id, tradeerr.ErrNotFound)
	}
	if len(c.AssigneeIDs) == 0 {
		return exchange.Contract{}, fmt.Errorf("contract %s has no assignee: %w", id, tradeerr.ErrInvalidState)
	}
	payees := make([]Wallet, len(c.AssigneeIDs))
	for i, pid := range c.AssigneeIDs {
		w, err := e.account(pid)
		if err != nil {
			return exchange.Contract{}, err
		}
		payees[i] = w
	}
	if err := canHoldAll(payees[0], c.AssigneeIDs[0], c.RewardItems); err != nil {
		return exchange.Contract{}, err
	}

	done, err := e.Player.CompleteContract(id, issuerID, now)
	if err != nil {
		return exchange.Contract{}, err
	}
	share := uint64(done.RewardCredits) / uint64(len(payees))
	rest := uint64(done.RewardCredits) - share*uint64(len(payees))
	for i, w := range payees {
		if i == 0 {
			w.Credit(share + rest)
			continue
		}
		w.Credit(share)
	}
	for _, s := range done.RewardItems {
		if err := payees[0].Store(s.Item, s.Quantity); err != nil {
			return done, err
		}
	}
	slog.Info("contract completed", "contract", id, "assignees", len(payees),
		"reward", humanize.Comma(int64(done.RewardCredits)))
	return done, nil
}

// CancelContract withdraws an open contract and refunds the issuer.
func (e *EconomySystem) CancelContract(id, issuerID string, now uint64) error {
	if err := e.Player.CancelContract(id, issuerID, now); err != nil {
		return err
	}
	e.refundContract(id)
	return nil
}

// FailContract ends an in-progress contract and refunds the issuer.
func (e *EconomySystem) FailContract(id, issuerID, reason string, now uint64) error {
	if err := e.Player.FailContract(id, issuerID, reason, now); err != nil {
		return err
	}
	e.refundContract(id)
	return nil
}

// DisputeContract freezes a contract and its escrow.
func (e *EconomySystem) DisputeContract(id, playerID, reason string, now uint64) error {
	return e.Player.DisputeContract(id, playerID, reason, now)
}

func (e *EconomySystem) refundContract(id string) {
	c, ok := e.Player.Contract(id)
	if !ok || e.Accounts == nil {
		return
	}
	issuer, ok := e.Accounts.Account(c.IssuerID)
	if !ok {
		slog.Warn("contract escrow unclaimed", "contract", id, "issuer", c.IssuerID)
		return
	}
	issuer.Credit(uint64(c.RewardCredits))
	for _, s := range c.RewardItems {
		if err := issuer.Store(s.Item, s.Quantity); err != nil {
			slog.Warn("contract reward goods lost on refund",
				"contract", id, "item", s.Item.Name, "quantity", s.Quantity, "error", err)
		}
	}
}

// mergeStacks folds repeated lines for one good into a single stack, keeping
// first-seen order.
func mergeStacks(stacks []exchange.Stack) ([]exchange.Stack, error) {
	out := make([]exchange.Stack, 0, len(stacks))
	at := make(map[string]int, len(stacks))
	for _, s := range stacks {
		i, ok := at[s.Item.Name]
		if !ok {
			at[s.Item.Name] = len(out)
			out = append(out, s)
			continue
		}
		sum := uint64(out[i].Quantity) + uint64(s.Quantity)
		if sum > math.MaxUint32 {
			return nil, fmt.Errorf("%s quantity overflows: %w", s.Item.Name, tradeerr.ErrInvalidState)
		}
		out[i].Quantity = uint32(sum)
	}
	return out, nil
}

// canHoldAll checks that a whole load fits in one hold at once.
func canHoldAll(w Wallet, who string, stacks []exchange.Stack) error {
	var weight uint64
	for _, s := range stacks {
		weight += uint64(s.Item.Weight) * uint64(s.Quantity)
	}
	if free := w.FreeCapacity(); weight > free {
		return fmt.Errorf("%s cannot carry %d cargo units (%d free): %w", who, weight, free, tradeerr.ErrCapacityExceeded)
	}
	return nil
}
