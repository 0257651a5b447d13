// Package queue holds the reading queue used to present a Sunday report one
// slide at a time.
//
// The queue is an arena of class items referenced by id. Every mutation is a
// named command that validates its precondition and leaves the state untouched
// when it does not hold. The two synthetic slides (grand totals, birthdays)
// are not members of the arena; they are appended when slides are counted or
// rendered, so they are always last and can never be reordered or excluded.
package queue

import (
	"errors"
	"fmt"
	"sync"
)

// Kind tells a class slide apart from the synthetic ones.
type Kind string

const (
	KindClass       Kind = "class"
	KindGrandTotals Kind = "grand_totals"
	KindBirthdays   Kind = "birthdays"
)

// Reserved ids of the synthetic slides.
const (
	GrandTotalsID = "__grand_totals"
	BirthdaysID   = "__birthdays"
)

// SyntheticCount is the number of fixed slides appended after the active items.
const SyntheticCount = 2

var (
	ErrSyntheticItem  = errors.New("queue: synthetic items cannot be excluded or restored")
	ErrNotActive      = errors.New("queue: item is not active")
	ErrNotExcluded    = errors.New("queue: item is not excluded")
	ErrInvalidReorder = errors.New("queue: reorder does not match the active set")
)

// Item is one reportable unit.
type Item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Kind  Kind   `json:"kind"`
}

// Synthetic reports whether the item is one of the fixed terminal slides.
func (i Item) Synthetic() bool {
	return i.Kind == KindGrandTotals || i.Kind == KindBirthdays ||
		i.ID == GrandTotalsID || i.ID == BirthdaysID
}

var syntheticSlides = [SyntheticCount]Item{
	{ID: GrandTotalsID, Title: "Grand totals", Kind: KindGrandTotals},
	{ID: BirthdaysID, Title: "Birthdays this week", Kind: KindBirthdays},
}

// Slide is a position in the presentation.
type Slide struct {
	Index int  `json:"index"`
	Item  Item `json:"item"`
}

// State is a copy of the controller state.
type State struct {
	Active     []Item `json:"active"`
	Excluded   []Item `json:"excluded"`
	Cursor     int    `json:"cursor"`
	SlideCount int    `json:"slide_count"`
	Current    Slide  `json:"current"`
}

// Controller is the reading queue. It is safe for concurrent use, though a
// presentation normally has a single owner.
type Controller struct {
	mu       sync.Mutex
	active   []Item
	excluded []Item
	cursor   int
	universe map[string]struct{}
}

// New seeds a queue in payload order with the cursor on the first slide.
// Synthetic items, items without id and repeated ids are dropped.
func New(items []Item) *Controller {
	c := &Controller{universe: make(map[string]struct{}, len(items))}
	for _, item := range items {
		if item.ID == "" || item.Synthetic() {
			continue
		}
		if _, dup := c.universe[item.ID]; dup {
			continue
		}
		if item.Kind == "" {
			item.Kind = KindClass
		}
		c.universe[item.ID] = struct{}{}
		c.active = append(c.active, item)
	}
	return c
}

// Exclude moves an active item to the excluded set. Excluding the last active
// item is allowed.
func (c *Controller) Exclude(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isSyntheticID(id) {
		return ErrSyntheticItem
	}
	idx := indexOf(c.active, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotActive, id)
	}
	item := c.active[idx]
	c.active = append(c.active[:idx:idx], c.active[idx+1:]...)
	c.excluded = append(c.excluded, item)
	c.clampLocked()
	return nil
}

// Restore moves an excluded item to the end of the active set.
func (c *Controller) Restore(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isSyntheticID(id) {
		return ErrSyntheticItem
	}
	idx := indexOf(c.excluded, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotExcluded, id)
	}
	item := c.excluded[idx]
	c.excluded = append(c.excluded[:idx:idx], c.excluded[idx+1:]...)
	c.active = append(c.active, item)
	return nil
}

// Reorder replaces the order of the active set. The call is a no-op returning
// ErrInvalidReorder unless ids is a permutation of the current active ids.
func (c *Controller) Reorder(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(ids) != len(c.active) {
		return ErrInvalidReorder
	}
	byID := make(map[string]Item, len(c.active))
	for _, item := range c.active {
		byID[item.ID] = item
	}
	next := make([]Item, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return ErrInvalidReorder
		}
		delete(byID, id)
		next = append(next, item)
	}
	c.active = next
	return nil
}

// Advance moves the cursor forward, stopping on the last synthetic slide.
func (c *Controller) Advance() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor++
	c.clampLocked()
	return c.cursor
}

// Retreat moves the cursor back, stopping on the first slide.
func (c *Controller) Retreat() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor--
	c.clampLocked()
	return c.cursor
}

// JumpTo sets the cursor, clamped to the slide range.
func (c *Controller) JumpTo(index int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = index
	c.clampLocked()
	return c.cursor
}

// SlideCount is the number of active items plus the synthetic slides.
func (c *Controller) SlideCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active) + SyntheticCount
}

// Cursor returns the current slide index.
func (c *Controller) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Slides lists every slide in presentation order.
func (c *Controller) Slides() []Slide {
	c.mu.Lock()
	defer c.mu.Unlock()
	slides := make([]Slide, 0, len(c.active)+SyntheticCount)
	for i := 0; i < len(c.active)+SyntheticCount; i++ {
		slides = append(slides, c.slideLocked(i))
	}
	return slides
}

// State returns a copy of the queue state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Active:     append([]Item(nil), c.active...),
		Excluded:   append([]Item(nil), c.excluded...),
		Cursor:     c.cursor,
		SlideCount: len(c.active) + SyntheticCount,
		Current:    c.slideLocked(c.cursor),
	}
}

// Check verifies the queue invariants: active and excluded are disjoint, their
// union is the seeded set, and the cursor is within range.
func (c *Controller) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(c.universe))
	for _, group := range [][]Item{c.active, c.excluded} {
		for _, item := range group {
			if item.Synthetic() {
				return fmt.Errorf("queue: synthetic item %s stored in the arena", item.ID)
			}
			if _, dup := seen[item.ID]; dup {
				return fmt.Errorf("queue: item %s present twice", item.ID)
			}
			if _, ok := c.universe[item.ID]; !ok {
				return fmt.Errorf("queue: unknown item %s", item.ID)
			}
			seen[item.ID] = struct{}{}
		}
	}
	if len(seen) != len(c.universe) {
		return fmt.Errorf("queue: %d items tracked, %d seeded", len(seen), len(c.universe))
	}
	if c.cursor < 0 || c.cursor > len(c.active)+SyntheticCount-1 {
		return fmt.Errorf("queue: cursor %d out of range", c.cursor)
	}
	return nil
}

func (c *Controller) slideLocked(i int) Slide {
	if i < len(c.active) {
		return Slide{Index: i, Item: c.active[i]}
	}
	return Slide{Index: i, Item: syntheticSlides[i-len(c.active)]}
}

func (c *Controller) clampLocked() {
	last := len(c.active) + SyntheticCount - 1
	if c.cursor > last {
		c.cursor = last
	}
	if c.cursor < 0 {
		c.cursor = 0
	}
}

func isSyntheticID(id string) bool {
	return id == GrandTotalsID || id == BirthdaysID
}

func indexOf(items []Item, id string) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
