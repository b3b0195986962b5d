package api

import (
	"fmt"
	"net/http"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/exchange"
	"github.com/talgya/star-exchange/internal/galaxy"
	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

type stackRequest struct {
	Item     string `json:"item"`
	Quantity uint32 `json:"quantity"`
}

// resolveItem names a good from the holder's hold first, then the catalogue.
func (s *Server) resolveItem(name, holderID string) (item.Item, error) {
	if a, ok := s.Sim.Accounts.Get(holderID); ok {
		if it, n := a.Holding(name); n > 0 {
			return it, nil
		}
	}
	if g, ok := galaxy.Lookup(name); ok {
		return g.Item, nil
	}
	return item.Item{}, fmt.Errorf("item %s: %w", name, tradeerr.ErrNotFound)
}

func (s *Server) resolveStacks(reqs []stackRequest, holderID string) ([]exchange.Stack, error) {
	out := make([]exchange.Stack, 0, len(reqs))
	for _, r := range reqs {
		it, err := s.resolveItem(r.Item, holderID)
		if err != nil {
			return nil, err
		}
		out = append(out, exchange.Stack{Item: it, Quantity: r.Quantity})
	}
	return out, nil
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		open := eco.Player.OpenContracts()
		if open == nil {
			open = []exchange.Contract{}
		}
		return open, nil
	})
}

func (s *Server) handleContractDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.readJSON(w, func(eco *economy.EconomySystem) (any, error) {
		c, ok := eco.Player.Contract(id)
		if !ok {
			return nil, fmt.Errorf("contract %s: %w", id, tradeerr.ErrNotFound)
		}
		return c, nil
	})
}

func (s *Server) handlePostContract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IssuerID      string         `json:"issuer_id"`
		Title         string         `json:"title"`
		Description   string         `json:"description"`
		ItemsRequired []stackRequest `json:"items_required"`
		RewardCredits uint32         `json:"reward_credits"`
		RewardItems   []stackRequest `json:"reward_items"`
		TTL           uint64         `json:"ttl"` // Seconds until the deadline; zero for none
		Terms         []string       `json:"terms"`
		Public        bool           `json:"public"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		http.Error(w, "title required", http.StatusBadRequest)
		return
	}
	s.write(w, http.StatusCreated, func(eco *economy.EconomySystem, now uint64) (any, error) {
		required, err := s.resolveStacks(req.ItemsRequired, "")
		if err != nil {
			return nil, err
		}
		rewards, err := s.resolveStacks(req.RewardItems, req.IssuerID)
		if err != nil {
			return nil, err
		}
		cr := exchange.ContractRequest{
			IssuerID:      req.IssuerID,
			Title:         req.Title,
			Description:   req.Description,
			ItemsRequired: required,
			RewardCredits: req.RewardCredits,
			RewardItems:   rewards,
			Terms:         req.Terms,
			Public:        req.Public,
		}
		if req.TTL > 0 {
			deadline := now + req.TTL
			cr.Deadline = &deadline
		}
		id, err := eco.PostContract(cr, now)
		return map[string]string{"id": id}, err
	})
}

// handleContractAction drives a contract through its lifecycle:
// accept, deliver, complete, cancel, fail, or dispute.
func (s *Server) handleContractAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID  string              `json:"player_id"`
		Message   string              `json:"message"`
		Reason    string              `json:"reason"`
		Delivered []exchange.Delivery `json:"delivered"`
	}
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	actions := map[string]func(*economy.EconomySystem, uint64) error{
		"accept": func(eco *economy.EconomySystem, now uint64) error {
			return eco.AcceptContract(id, req.PlayerID, now)
		},
		"deliver": func(eco *economy.EconomySystem, now uint64) error {
			return eco.DeliverToContract(id, req.PlayerID, req.Message, req.Delivered, now)
		},
		"complete": func(eco *economy.EconomySystem, now uint64) error {
			_, err := eco.CompleteContract(id, req.PlayerID, now)
			return err
		},
		"cancel": func(eco *economy.EconomySystem, now uint64) error {
			return eco.CancelContract(id, req.PlayerID, now)
		},
		"fail": func(eco *economy.EconomySystem, now uint64) error {
			return eco.FailContract(id, req.PlayerID, req.Reason, now)
		},
		"dispute": func(eco *economy.EconomySystem, now uint64) error {
			return eco.DisputeContract(id, req.PlayerID, req.Reason, now)
		},
	}
	act, ok := actions[r.PathValue("action")]
	if !ok {
		http.Error(w, "unknown contract action", http.StatusNotFound)
		return
	}
	s.write(w, http.StatusOK, func(eco *economy.EconomySystem, now uint64) (any, error) {
		if err := act(eco, now); err != nil {
			return nil, err
		}
		c, _ := eco.Player.Contract(id)
		return c, nil
	})
}
