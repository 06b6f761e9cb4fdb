// Package report renders a monthly request sequence as CSV followed by a summary block.
package report

import (
	"context"
	"encoding/csv"
	"io"
	"iter"
	"sort"
	"strconv"
	"time"

	"ewastePickup/models"
)

// Header is the column order of every report row.
var Header = []string{"id", "created_at", "owner", "item_type", "brand", "condition", "quantity", "collector", "status", "completed_at", "pickup_address"}

// TopItemTypes is how many item types the summary ranks.
const TopItemTypes = 3

// ItemCount is the total quantity collected for one item type.
type ItemCount struct {
	ItemType string `json:"item_type"`
	Quantity int    `json:"quantity"`
}

// Summary aggregates the rendered rows.
type Summary struct {
	TotalPickups     int         `json:"total_pickups"`
	TotalItems       int         `json:"total_items"`
	UniqueRequesters int         `json:"unique_requesters"`
	UniqueCollectors int         `json:"unique_collectors"`
	TopItemTypes     []ItemCount `json:"top_item_types"`
}

// UserLookup resolves user ids to display names.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Emitter renders report documents.
type Emitter struct {
	users UserLookup
}

func NewEmitter(users UserLookup) *Emitter {
	return &Emitter{users: users}
}

type nameCache struct {
	ctx   context.Context
	users UserLookup
	names map[int64]string
}

func (c *nameCache) name(id int64) (string, error) {
	if n, ok := c.names[id]; ok {
		return n, nil
	}
	n := strconv.FormatInt(id, 10)
	if c.users != nil {
		u, err := c.users.GetByID(c.ctx, id)
		if err != nil {
			return "", err
		}
		if u != nil {
			n = u.Username
		}
	}
	c.names[id] = n
	return n, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Render consumes rows once, writing one CSV line per request and then the summary.
// The first error from rows or from w aborts rendering.
func (e *Emitter) Render(ctx context.Context, w io.Writer, rows iter.Seq2[models.PickupRequest, error]) (Summary, error) {
	cw := csv.NewWriter(w)
	names := &nameCache{ctx: ctx, users: e.users, names: map[int64]string{}}
	acc := NewAccumulator()

	if err := cw.Write(Header); err != nil {
		return Summary{}, err
	}
	for r, err := range rows {
		if err != nil {
			return Summary{}, err
		}
		owner, err := names.name(r.OwnerID)
		if err != nil {
			return Summary{}, err
		}
		collector := ""
		if r.AssignedCollectorID != nil {
			if collector, err = names.name(*r.AssignedCollectorID); err != nil {
				return Summary{}, err
			}
		}
		created := r.CreatedAt
		if err := cw.Write([]string{
			strconv.FormatInt(r.ID, 10),
			formatTime(&created),
			owner,
			r.ItemType,
			r.Brand,
			r.Condition,
			strconv.Itoa(r.Quantity),
			collector,
			string(r.Status),
			formatTime(r.CompletedAt),
			r.PickupAddress,
		}); err != nil {
			return Summary{}, err
		}
		acc.Add(&r)
	}

	sum := acc.Summary()
	lines := [][]string{
		{},
		{"summary"},
		{"total_pickups", strconv.Itoa(sum.TotalPickups)},
		{"total_items", strconv.Itoa(sum.TotalItems)},
		{"unique_requesters", strconv.Itoa(sum.UniqueRequesters)},
		{"unique_collectors", strconv.Itoa(sum.UniqueCollectors)},
	}
	for i, ic := range sum.TopItemTypes {
		lines = append(lines, []string{"top_item_type_" + strconv.Itoa(i+1), ic.ItemType, strconv.Itoa(ic.Quantity)})
	}
	if err := cw.WriteAll(lines); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Accumulator folds requests into a Summary one at a time.
type Accumulator struct {
	pickups    int
	items      int
	requesters map[int64]struct{}
	collectors map[int64]struct{}
	byType     map[string]int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		requesters: map[int64]struct{}{},
		collectors: map[int64]struct{}{},
		byType:     map[string]int{},
	}
}

func (a *Accumulator) Add(r *models.PickupRequest) {
	a.pickups++
	a.items += r.Quantity
	a.requesters[r.OwnerID] = struct{}{}
	if r.AssignedCollectorID != nil {
		a.collectors[*r.AssignedCollectorID] = struct{}{}
	}
	a.byType[r.ItemType] += r.Quantity
}

func (a *Accumulator) Summary() Summary {
	top := make([]ItemCount, 0, len(a.byType))
	for t, q := range a.byType {
		top = append(top, ItemCount{ItemType: t, Quantity: q})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Quantity != top[j].Quantity {
			return top[i].Quantity > top[j].Quantity
		}
		return top[i].ItemType < top[j].ItemType
	})
	if len(top) > TopItemTypes {
		top = top[:TopItemTypes]
	}
	return Summary{
		TotalPickups:     a.pickups,
		TotalItems:       a.items,
		UniqueRequesters: len(a.requesters),
		UniqueCollectors: len(a.collectors),
		TopItemTypes:     top,
	}
}
