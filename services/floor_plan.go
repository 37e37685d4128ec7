package services

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// TableSpec is one physical table of the floor plan.
type TableSpec struct {
	Number     int  `yaml:"number" json:"number"`
	Capacity   int  `yaml:"capacity" json:"capacity"`
	WalkInOnly bool `yaml:"walk_in_only,omitempty" json:"walk_in_only"`
}

// TierSpec is a party-size range and the ordered candidates offered to it.
// A tier lists either single tables or table pairs, never both.
type TierSpec struct {
	Name     string  `yaml:"name" json:"name"`
	MinParty int     `yaml:"min_party" json:"min_party"`
	MaxParty int     `yaml:"max_party" json:"max_party"`
	Tables   []int   `yaml:"tables,omitempty" json:"tables,omitempty"`
	Pairs    [][]int `yaml:"pairs,omitempty" json:"pairs,omitempty"`
}

// FloorPlan is the static table inventory plus the per-tier priority lists.
type FloorPlan struct {
	Tables []TableSpec `yaml:"tables" json:"tables"`
	Tiers  []TierSpec  `yaml:"tiers" json:"tiers"`
}

// DefaultFloorPlan is the dining room the service ships with.
// Priority order follows floor preference, not table number.
func DefaultFloorPlan() FloorPlan {
	var tables []TableSpec
	for n := 1; n <= 8; n++ {
		tables = append(tables, TableSpec{Number: n, Capacity: 4})
	}
	for n := 9; n <= 14; n++ {
		tables = append(tables, TableSpec{Number: n, Capacity: 6})
	}
	for n := 15; n <= 20; n++ {
		tables = append(tables, TableSpec{Number: n, Capacity: 4})
	}
	for n := 21; n <= 24; n++ {
		tables = append(tables, TableSpec{Number: n, Capacity: 5})
	}
	tables = append(tables,
		TableSpec{Number: 25, Capacity: 2, WalkInOnly: true},
		TableSpec{Number: 26, Capacity: 2, WalkInOnly: true},
	)

	return FloorPlan{
		Tables: tables,
		Tiers: []TierSpec{
			{Name: "small", MinParty: 1, MaxParty: 3, Tables: []int{2, 3, 5, 6, 1, 4, 7, 8}},
			{Name: "medium", MinParty: 4, MaxParty: 5, Tables: []int{10, 11, 9, 12, 13, 14}},
			{Name: "pair", MinParty: 6, MaxParty: 7, Pairs: [][]int{{15, 16}, {17, 18}, {19, 20}}},
			{Name: "large", MinParty: 8, MaxParty: 8, Pairs: [][]int{{21, 22}, {23, 24}}},
		},
	}
}

// LoadFloorPlan reads a floor plan from a YAML file.
func LoadFloorPlan(path string) (FloorPlan, error) {
	var plan FloorPlan
	raw, err := os.ReadFile(path)
	if err != nil {
		return plan, fmt.Errorf("read floor plan: %w", err)
	}
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return plan, fmt.Errorf("parse floor plan %s: %w", path, err)
	}
	return plan, nil
}

// Validate checks the plan is internally consistent.
func (p FloorPlan) Validate() error {
	if len(p.Tables) == 0 {
		return fmt.Errorf("floor plan has no tables")
	}
	known := make(map[int]TableSpec, len(p.Tables))
	for _, t := range p.Tables {
		if t.Number <= 0 {
			return fmt.Errorf("table number %d must be positive", t.Number)
		}
		if t.Capacity <= 0 {
			return fmt.Errorf("table %d: capacity must be positive", t.Number)
		}
		if _, dup := known[t.Number]; dup {
			return fmt.Errorf("table %d listed twice", t.Number)
		}
		known[t.Number] = t
	}
	if len(p.Tiers) == 0 {
		return fmt.Errorf("floor plan has no tiers")
	}

	used := make(map[int]string)
	claim := func(tier string, n int) error {
		spec, ok := known[n]
		if !ok {
			return fmt.Errorf("tier %s: unknown table %d", tier, n)
		}
		if spec.WalkInOnly {
			return fmt.Errorf("tier %s: table %d is walk-in only", tier, n)
		}
		if prev, dup := used[n]; dup {
			return fmt.Errorf("tier %s: table %d already used by tier %s", tier, n, prev)
		}
		used[n] = tier
		return nil
	}

	next := 1
	for _, tier := range p.Tiers {
		if tier.MinParty != next {
			return fmt.Errorf("tier %s must start at party size %d, starts at %d", tier.Name, next, tier.MinParty)
		}
		if tier.MaxParty < tier.MinParty {
			return fmt.Errorf("tier %s: max_party below min_party", tier.Name)
		}
		next = tier.MaxParty + 1

		switch {
		case len(tier.Tables) > 0 && len(tier.Pairs) > 0:
			return fmt.Errorf("tier %s lists both tables and pairs", tier.Name)
		case len(tier.Tables) == 0 && len(tier.Pairs) == 0:
			return fmt.Errorf("tier %s has no candidates", tier.Name)
		}
		for _, n := range tier.Tables {
			if err := claim(tier.Name, n); err != nil {
				return err
			}
		}
		for _, pair := range tier.Pairs {
			if len(pair) != 2 {
				return fmt.Errorf("tier %s: pair %v must have exactly two tables", tier.Name, pair)
			}
			for _, n := range pair {
				if err := claim(tier.Name, n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// TablePair is an ordered pair of tables joined for one party.
type TablePair [2]int

type tierCandidates struct {
	spec   TierSpec
	tables []int
	pairs  []TablePair
}

// TableRegistry is the read-only view of the floor plan. Safe for concurrent use.
type TableRegistry struct {
	tables   map[int]TableSpec
	order    []int
	tiers    []tierCandidates
	partners map[int][]int
}

func NewTableRegistry(plan FloorPlan) (*TableRegistry, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	r := &TableRegistry{
		tables:   make(map[int]TableSpec, len(plan.Tables)),
		partners: make(map[int][]int),
	}
	for _, t := range plan.Tables {
		r.tables[t.Number] = t
		r.order = append(r.order, t.Number)
	}
	sort.Ints(r.order)

	for _, spec := range plan.Tiers {
		t := tierCandidates{spec: spec, tables: append([]int(nil), spec.Tables...)}
		for _, p := range spec.Pairs {
			pair := TablePair{p[0], p[1]}
			t.pairs = append(t.pairs, pair)
			r.partners[pair[0]] = append(r.partners[pair[0]], pair[1])
			r.partners[pair[1]] = append(r.partners[pair[1]], pair[0])
		}
		r.tiers = append(r.tiers, t)
	}
	return r, nil
}

// TierFor returns the tier name serving partySize, checked in floor plan order.
func (r *TableRegistry) TierFor(partySize int) (string, bool) {
	for _, t := range r.tiers {
		if partySize >= t.spec.MinParty && partySize <= t.spec.MaxParty {
			return t.spec.Name, true
		}
	}
	return "", false
}

// MaxAutoPartySize is the largest party the registry can place without staff.
func (r *TableRegistry) MaxAutoPartySize() int {
	return r.tiers[len(r.tiers)-1].spec.MaxParty
}

// ListReservableTables returns the single-table priority list for a tier.
func (r *TableRegistry) ListReservableTables(tierName string) []int {
	for _, t := range r.tiers {
		if t.spec.Name == tierName {
			return append([]int(nil), t.tables...)
		}
	}
	return nil
}

// Pairs returns the pair priority list for a tier.
func (r *TableRegistry) Pairs(tierName string) []TablePair {
	for _, t := range r.tiers {
		if t.spec.Name == tierName {
			return append([]TablePair(nil), t.pairs...)
		}
	}
	return nil
}

// IsReservable is false for walk-in tables and unknown numbers.
func (r *TableRegistry) IsReservable(number int) bool {
	t, ok := r.tables[number]
	return ok && !t.WalkInOnly
}

// CandidateTables lists every table the tier for partySize may hand out,
// single tables first. Parties outside every tier get nil.
func (r *TableRegistry) CandidateTables(partySize int) []int {
	for _, t := range r.tiers {
		if partySize < t.spec.MinParty || partySize > t.spec.MaxParty {
			continue
		}
		out := append([]int(nil), t.tables...)
		for _, p := range t.pairs {
			out = append(out, p[0], p[1])
		}
		return out
	}
	return nil
}

// Tables returns the inventory ordered by table number.
func (r *TableRegistry) Tables() []TableSpec {
	out := make([]TableSpec, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tables[n])
	}
	return out
}

// CombinableWith returns the tables number can be joined with.
func (r *TableRegistry) CombinableWith(number int) []int {
	return append([]int(nil), r.partners[number]...)
}

// Capacity sums the seats of the given tables.
func (r *TableRegistry) Capacity(numbers []int) int {
	total := 0
	for _, n := range numbers {
		total += r.tables[n].Capacity
	}
	return total
}
