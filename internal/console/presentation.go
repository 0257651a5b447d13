package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ebdconsole.org/internal/audit"
	"ebdconsole.org/internal/ids"
	"ebdconsole.org/internal/obs"
	"ebdconsole.org/internal/queue"
	"ebdconsole.org/internal/report"
)

// Presentation is an open Sunday report being read slide by slide.
type Presentation struct {
	id       string
	openedAt time.Time
	payload  report.Payload
	classes  map[string]report.ClassTotals

	mu    sync.Mutex
	queue *queue.Controller
}

// Op names a presentation command.
type Op string

const (
	OpExclude Op = "exclude"
	OpRestore Op = "restore"
	OpReorder Op = "reorder"
	OpAdvance Op = "advance"
	OpRetreat Op = "retreat"
	OpJump    Op = "jump"
)

// Command is one queue mutation.
type Command struct {
	Op     Op
	ItemID string
	Order  []string
	Index  int
}

// SlideContent is what the current slide shows. Kind names the slide; Class
// or Totals is set for their kinds, and a birthdays slide may list nobody.
type SlideContent struct {
	Kind      queue.Kind          `json:"kind"`
	Class     *report.ClassTotals `json:"class,omitempty"`
	Totals    *report.GrandTotals `json:"totals,omitempty"`
	Birthdays []report.Birthday   `json:"birthdays,omitempty"`
}

// View is a presentation snapshot for rendering.
type View struct {
	ID       string       `json:"id"`
	Date     string       `json:"date"`
	OpenedAt time.Time    `json:"opened_at"`
	Queue    queue.State  `json:"queue"`
	Content  SlideContent `json:"content"`
}

// OpenPresentation fetches the report for date, keeps what the session's
// scope may see and seeds a reading queue in payload order.
func (s *Session) OpenPresentation(ctx context.Context, date time.Time) (View, error) {
	payload, err := s.manager.reports.GetReport(ctx, s.scope, report.Day(date))
	if err != nil {
		return View{}, err
	}
	payload = report.Filter(payload, s.scope)

	items := make([]queue.Item, 0, len(payload.Classes))
	classes := make(map[string]report.ClassTotals, len(payload.Classes))
	for _, c := range payload.Classes {
		title := c.ClassName
		if title == "" {
			title = c.ClassID
		}
		items = append(items, queue.Item{ID: c.ClassID, Title: title, Kind: queue.KindClass})
		classes[c.ClassID] = c
	}

	p := &Presentation{
		id:       ids.New(),
		openedAt: s.manager.now(),
		payload:  payload,
		classes:  classes,
		queue:    queue.New(items),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return View{}, ErrSessionClosed
	}
	s.presentations[p.id] = p
	s.mu.Unlock()

	obs.PresentationOpened()
	_ = audit.LogEvent(ctx, "presentation.open", map[string]any{
		"presentation_id": p.id,
		"date":            payload.Date.Format(report.DateLayout),
		"classes":         len(items),
	})
	return p.view(), nil
}

// Presentation returns the current view of an open presentation.
func (s *Session) Presentation(id string) (View, error) {
	p, err := s.presentation(id)
	if err != nil {
		return View{}, err
	}
	return p.view(), nil
}

// Apply runs cmd against the presentation's queue. A rejected command leaves
// the queue unchanged; the returned view is valid in both cases.
func (s *Session) Apply(ctx context.Context, id string, cmd Command) (View, error) {
	p, err := s.presentation(id)
	if err != nil {
		return View{}, err
	}
	err = p.apply(cmd)
	if errors.Is(err, ErrUnknownCommand) {
		return View{}, err
	}
	obs.ObserveQueueMutation(string(cmd.Op), err == nil)
	fields := map[string]any{
		"presentation_id": id,
		"op":              string(cmd.Op),
		"applied":         err == nil,
	}
	if cmd.ItemID != "" {
		fields["item_id"] = cmd.ItemID
	}
	_ = audit.LogEvent(ctx, "presentation.command", fields)
	return p.view(), err
}

// ClosePresentation discards a presentation.
func (s *Session) ClosePresentation(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.presentations[id]
	delete(s.presentations, id)
	s.mu.Unlock()
	if !ok {
		return ErrPresentationNotFound
	}
	obs.PresentationClosed()
	_ = audit.LogEvent(ctx, "presentation.close", map[string]any{"presentation_id": id})
	return nil
}

func (p *Presentation) apply(cmd Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	switch cmd.Op {
	case OpExclude:
		err = p.queue.Exclude(cmd.ItemID)
	case OpRestore:
		err = p.queue.Restore(cmd.ItemID)
	case OpReorder:
		err = p.queue.Reorder(cmd.Order)
	case OpAdvance:
		p.queue.Advance()
	case OpRetreat:
		p.queue.Retreat()
	case OpJump:
		p.queue.JumpTo(cmd.Index)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Op)
	}
	if cerr := p.queue.Check(); cerr != nil {
		obs.Error("queue_invariant_broken", map[string]any{"presentation_id": p.id, "error": cerr.Error()})
		return cerr
	}
	return err
}

func (p *Presentation) view() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.queue.State()
	return View{
		ID:       p.id,
		Date:     p.payload.Date.Format(report.DateLayout),
		OpenedAt: p.openedAt,
		Queue:    state,
		Content:  p.content(state.Current),
	}
}

func (p *Presentation) content(slide queue.Slide) SlideContent {
	switch slide.Item.Kind {
	case queue.KindGrandTotals:
		totals := report.Totalize(p.payload.Classes)
		if p.payload.Totals != nil {
			totals = *p.payload.Totals
		}
		return SlideContent{Kind: queue.KindGrandTotals, Totals: &totals}
	case queue.KindBirthdays:
		return SlideContent{Kind: queue.KindBirthdays, Birthdays: append([]report.Birthday{}, p.payload.Birthdays...)}
	default:
		c := p.classes[slide.Item.ID]
		return SlideContent{Kind: queue.KindClass, Class: &c}
	}
}
