package exchange

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/talgya/star-exchange/internal/item"
	"github.com/talgya/star-exchange/internal/tradeerr"
)

// ContractStatus follows Open → InProgress → {Completed, Failed, Disputed}
// and Open → Canceled.
type ContractStatus uint8

const (
	ContractOpen ContractStatus = iota
	ContractInProgress
	ContractCompleted
	ContractFailed
	ContractCanceled
	ContractDisputed
)

func (s ContractStatus) String() string {
	switch s {
	case ContractOpen:
		return "Open"
	case ContractInProgress:
		return "InProgress"
	case ContractCompleted:
		return "Completed"
	case ContractFailed:
		return "Failed"
	case ContractCanceled:
		return "Canceled"
	case ContractDisputed:
		return "Disputed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s ContractStatus) Terminal() bool {
	return s != ContractOpen && s != ContractInProgress
}

// Stack is a quantity of one good.
type Stack struct {
	Item     item.Item `json:"item"`
	Quantity uint32    `json:"quantity"`
}

// Delivery records goods handed over against a contract.
type Delivery struct {
	ItemName string `json:"item_name"`
	Quantity uint32 `json:"quantity"`
}

// Progress is one entry in a contract's audit log.
type Progress struct {
	Timestamp uint64     `json:"timestamp"`
	UpdatedBy string     `json:"updated_by"`
	Message   string     `json:"message"`
	Delivered []Delivery `json:"delivered,omitempty"`
}

// Contract is a delivery agreement between an issuer and its assignees.
type Contract struct {
	ID            string         `json:"id"`
	IssuerID      string         `json:"issuer_id"`
	AssigneeIDs   []string       `json:"assignee_ids"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	ItemsRequired []Stack        `json:"items_required"`
	RewardCredits uint32         `json:"reward_credits"`
	RewardItems   []Stack        `json:"reward_items,omitempty"`
	Deadline      *uint64        `json:"deadline,omitempty"`
	CreatedAt     uint64         `json:"created_at"`
	Status        ContractStatus `json:"status"`
	Progress      []Progress     `json:"progress"`
	Terms         []string       `json:"terms,omitempty"`
	Public        bool           `json:"public"`
}

func (c *Contract) log(now uint64, by, msg string, delivered []Delivery) {
	c.Progress = append(c.Progress, Progress{Timestamp: now, UpdatedBy: by, Message: msg, Delivered: delivered})
}

func (c *Contract) involves(playerID string) bool {
	return c.IssuerID == playerID || slices.Contains(c.AssigneeIDs, playerID)
}

// Delivered totals the quantities logged per good.
func (c *Contract) Delivered() map[string]uint32 {
	out := make(map[string]uint32)
	for _, p := range c.Progress {
		for _, d := range p.Delivered {
			out[d.ItemName] += d.Quantity
		}
	}
	return out
}

// ContractRequest describes a new contract.
type ContractRequest struct {
	IssuerID      string
	Title         string
	Description   string
	ItemsRequired []Stack
	RewardCredits uint32
	RewardItems   []Stack
	Deadline      *uint64
	Terms         []string
	Public        bool
}

// CreateContract posts an open contract and returns its id.
func (pm *PlayerMarket) CreateContract(req ContractRequest, now uint64) string {
	c := &Contract{
		ID:            uuid.NewString(),
		IssuerID:      req.IssuerID,
		Title:         req.Title,
		Description:   req.Description,
		ItemsRequired: req.ItemsRequired,
		RewardCredits: req.RewardCredits,
		RewardItems:   req.RewardItems,
		Deadline:      req.Deadline,
		CreatedAt:     now,
		Status:        ContractOpen,
		Terms:         req.Terms,
		Public:        req.Public,
	}
	c.log(now, req.IssuerID, "Contract posted", nil)
	pm.Contracts[c.ID] = c
	return c.ID
}

// Contract returns a copy of a contract.
func (pm *PlayerMarket) Contract(id string) (Contract, bool) {
	c, ok := pm.Contracts[id]
	if !ok {
		return Contract{}, false
	}
	return *c, true
}

// OpenContracts returns public contracts still awaiting an assignee, oldest first.
func (pm *PlayerMarket) OpenContracts() []Contract {
	var out []Contract
	for _, c := range pm.Contracts {
		if c.Public && c.Status == ContractOpen {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b Contract) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out
}

func (pm *PlayerMarket) contractIn(id string, want ContractStatus) (*Contract, error) {
	c, ok := pm.Contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, tradeerr.ErrNotFound)
	}
	if c.Status != want {
		return nil, fmt.Errorf("contract %s is %s, want %s: %w", id, c.Status, want, tradeerr.ErrInvalidState)
	}
	return c, nil
}

// AcceptContract assigns playerID to an open contract and starts it.
func (pm *PlayerMarket) AcceptContract(id, playerID string, now uint64) error {
	c, err := pm.contractIn(id, ContractOpen)
	if err != nil {
		return err
	}
	if c.IssuerID == playerID {
		return fmt.Errorf("accept own contract %s: %w", id, tradeerr.ErrUnauthorized)
	}
	if !slices.Contains(c.AssigneeIDs, playerID) {
		c.AssigneeIDs = append(c.AssigneeIDs, playerID)
	}
	c.Status = ContractInProgress
	c.log(now, playerID, "Contract accepted", nil)
	return nil
}

// UpdateContractProgress appends a progress note from an assignee or the issuer.
func (pm *PlayerMarket) UpdateContractProgress(id, playerID, message string, delivered []Delivery, now uint64) error {
	if err := pm.CheckContractProgress(id, playerID); err != nil {
		return err
	}
	pm.Contracts[id].log(now, playerID, message, delivered)
	return nil
}

// CheckContractProgress reports whether playerID may log progress on a
// contract, without logging anything.
func (pm *PlayerMarket) CheckContractProgress(id, playerID string) error {
	c, ok := pm.Contracts[id]
	if !ok {
		return fmt.Errorf("contract %s: %w", id, tradeerr.ErrNotFound)
	}
	if !c.involves(playerID) {
		return fmt.Errorf("update contract %s: %w", id, tradeerr.ErrUnauthorized)
	}
	if c.Status != ContractInProgress {
		return fmt.Errorf("contract %s is %s: %w", id, c.Status, tradeerr.ErrInvalidState)
	}
	return nil
}

// CompleteContract closes an in-progress contract. Only the issuer may do so;
// the returned copy carries the rewards to pay out.
func (pm *PlayerMarket) CompleteContract(id, issuerID string, now uint64) (Contract, error) {
	c, err := pm.issuerTransition(id, issuerID, ContractInProgress)
	if err != nil {
		return Contract{}, err
	}
	c.Status = ContractCompleted
	c.log(now, issuerID, "Contract marked as completed by issuer", nil)
	return *c, nil
}

// CancelContract withdraws an open contract.
func (pm *PlayerMarket) CancelContract(id, issuerID string, now uint64) error {
	c, err := pm.issuerTransition(id, issuerID, ContractOpen)
	if err != nil {
		return err
	}
	c.Status = ContractCanceled
	c.log(now, issuerID, "Contract canceled by issuer", nil)
	return nil
}

// FailContract ends an in-progress contract without payout.
func (pm *PlayerMarket) FailContract(id, issuerID, reason string, now uint64) error {
	c, err := pm.issuerTransition(id, issuerID, ContractInProgress)
	if err != nil {
		return err
	}
	c.Status = ContractFailed
	c.log(now, issuerID, "Contract failed: "+reason, nil)
	return nil
}

// DisputeContract freezes an in-progress contract. Either side may raise it.
func (pm *PlayerMarket) DisputeContract(id, playerID, reason string, now uint64) error {
	c, err := pm.contractIn(id, ContractInProgress)
	if err != nil {
		return err
	}
	if !c.involves(playerID) {
		return fmt.Errorf("dispute contract %s: %w", id, tradeerr.ErrUnauthorized)
	}
	c.Status = ContractDisputed
	c.log(now, playerID, "Contract disputed: "+reason, nil)
	return nil
}

func (pm *PlayerMarket) issuerTransition(id, issuerID string, from ContractStatus) (*Contract, error) {
	c, ok := pm.Contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, tradeerr.ErrNotFound)
	}
	if c.IssuerID != issuerID {
		return nil, fmt.Errorf("contract %s: only the issuer may do that: %w", id, tradeerr.ErrUnauthorized)
	}
	if c.Status != from {
		return nil, fmt.Errorf("contract %s is %s, want %s: %w", id, c.Status, from, tradeerr.ErrInvalidState)
	}
	return c, nil
}

// ExpireContracts closes contracts whose deadline passed: open ones are
// canceled and in-progress ones fail. Returns the affected ids.
func (pm *PlayerMarket) ExpireContracts(now uint64) []string {
	var ids []string
	for _, c := range pm.Contracts {
		if c.Deadline == nil || now <= *c.Deadline {
			continue
		}
		switch c.Status {
		case ContractOpen:
			c.Status = ContractCanceled
			c.log(now, c.IssuerID, "Contract expired before acceptance", nil)
		case ContractInProgress:
			c.Status = ContractFailed
			c.log(now, c.IssuerID, "Contract deadline passed", nil)
		default:
			continue
		}
		ids = append(ids, c.ID)
	}
	slices.Sort(ids)
	return ids
}
