package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/star-exchange/internal/economy"
	"github.com/talgya/star-exchange/internal/player"
)

// maxEvents is how many recent events the feed keeps for catch-up.
const maxEvents = 500

// Event is a notable occurrence in the economy.
type Event struct {
	Time        uint64 `json:"time"`
	Description string `json:"description"`
	Category    string `json:"category"` // "order", "economy", "flow", "listing", "contract"
}

// Simulation ties the guarded economy, the player accounts, and the event
// feed together and advances them on the game clock.
type Simulation struct {
	Economy  *Guard
	Accounts *player.Registry

	mu     sync.Mutex
	events []Event
	subs   map[int]chan Event
	nextID int
	last   economy.TickReport
}

// NewSimulation wires an economy to an account registry.
func NewSimulation(eco *economy.EconomySystem, accounts *player.Registry) *Simulation {
	eco.Accounts = accounts
	return &Simulation{
		Economy:  NewGuard(eco),
		Accounts: accounts,
		subs:     make(map[int]chan Event),
	}
}

// TickHour runs the economy update for the game clock reading now.
func (s *Simulation) TickHour(now uint64) {
	var report economy.TickReport
	var ran bool
	s.Economy.Write(func(eco *economy.EconomySystem) {
		report, ran = eco.Update(now)
	})
	if !ran {
		return
	}
	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	for _, e := range Describe(report) {
		s.EmitEvent(e)
	}
}

// TickDay logs a daily summary of the feed.
func (s *Simulation) TickDay(now uint64) {
	counts := make(map[string]int)
	for _, e := range s.RecentEvents(maxEvents) {
		if e.Time+SecondsPerDay > now {
			counts[e.Category]++
		}
	}
	var trade, listings int
	s.Economy.Read(func(eco *economy.EconomySystem) {
		trade = len(eco.Markets)
		listings = len(eco.Player.Listings)
	})
	slog.Info("daily report",
		"time", GameTime(now),
		"markets", trade,
		"listings", listings,
		"accounts", len(s.Accounts.All()),
		"events_order", counts["order"],
		"events_economy", counts["economy"],
		"events_flow", counts["flow"],
		"events_listing", counts["listing"],
		"events_contract", counts["contract"],
	)
}

// LastReport returns the most recent tick report.
func (s *Simulation) LastReport() economy.TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Describe turns a tick report into feed events.
func Describe(r economy.TickReport) []Event {
	var out []Event
	add := func(cat, format string, args ...any) {
		out = append(out, Event{Time: r.Time, Category: cat, Description: fmt.Sprintf(format, args...)})
	}
	for _, o := range r.Executed() {
		add("order", "%s order by %s filled: %d %s at %s cr in %s",
			o.Side, o.OwnerID, o.Quantity, o.ItemName, humanize.Comma(int64(o.ExecutedPrice)), o.LocationID)
	}
	for _, id := range r.MarketIDs() {
		for _, o := range r.Markets[id].Failed {
			add("order", "%s order by %s for %s in %s failed", o.Side, o.OwnerID, o.ItemName, id)
		}
		for _, ev := range r.Markets[id].Spawned {
			add("economy", "%s in %s", ev, id)
		}
	}
	for _, ev := range r.GlobalEvents {
		add("economy", "Galaxy-wide %s", ev)
	}
	if r.LocalEvent != nil {
		add("economy", "%s in %s", r.LocalEvent.Event, r.LocalEvent.LocationID)
	}
	for _, f := range r.Flows {
		add("flow", "Traders moved %d %s from %s to %s", f.Quantity, f.ItemName, f.From, f.To)
	}
	if n := len(r.ExpiredListings); n > 0 {
		add("listing", "%d listings expired", n)
	}
	for _, id := range r.ExpiredContracts {
		add("contract", "Contract %s lapsed", id)
	}
	return out
}

// EmitEvent records an event and fans it out to subscribers. Slow
// subscribers miss events rather than stall the tick.
func (s *Simulation) EmitEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = append([]Event(nil), s.events[len(s.events)-maxEvents:]...)
	}
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// RecentEvents returns up to n events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := max(len(s.events)-n, 0)
	return append([]Event(nil), s.events[start:]...)
}

// Subscribe returns a channel receiving every future event.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ch := make(chan Event, 64)
	s.subs[s.nextID] = ch
	return s.nextID, ch
}

// Unsubscribe closes a subscription.
func (s *Simulation) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}
