package event

import (
	"io"

	"github.com/FocuswithJustin/phyloconv/core/errors"
)

// Reader produces the events of one document. Next returns io.EOF after the
// DOCUMENT/END event.
type Reader interface {
	Next() (Event, error)
	Peek() (Event, error)
}

// Source advances a format tokenizer by one command or element. It appends
// zero or more events to q. At end of input it closes any open structures,
// appends their END events and returns io.EOF; the reader emits DOCUMENT/END
// itself.
type Source interface {
	Advance(q *Queue) error
}

// Queue is the lookahead queue shared between a reader and its source.
type Queue struct {
	items []Event
	head  int
}

// Push appends events to the end of the queue.
func (q *Queue) Push(events ...Event) {
	q.items = append(q.items, events...)
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.items) - q.head
}

// Front returns the first event without removing it.
func (q *Queue) Front() (Event, bool) {
	if q.Len() == 0 {
		return nil, false
	}
	return q.items[q.head], true
}

// Pop removes and returns the first event.
func (q *Queue) Pop() (Event, bool) {
	if q.Len() == 0 {
		return nil, false
	}
	e := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return e, true
}

// Reset empties the queue.
func (q *Queue) Reset() {
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
}

type readerState int

const (
	beforeDocument readerState = iota
	documentOpen
	documentClosed
)

// PullReader is the reader state machine shared by all formats.
type PullReader struct {
	src   Source
	queue Queue
	state readerState
	eof   bool
	err   error
	open  []ContentType
}

// NewPullReader returns a reader around src.
func NewPullReader(src Source) *PullReader {
	return &PullReader{src: src}
}

// fill advances the source until at least one event is queued or the
// document is finished. It loops rather than recursing so that a source
// producing many empty steps cannot grow the stack.
func (r *PullReader) fill() error {
	if r.err != nil {
		return r.err
	}
	if r.state == beforeDocument {
		r.queue.Push(&DocumentStart{})
		r.state = documentOpen
		return nil
	}
	for r.queue.Len() == 0 && !r.eof {
		n := len(r.queue.items)
		err := r.src.Advance(&r.queue)
		r.track(r.queue.items[n:])
		if err == io.EOF && len(r.open) > 0 {
			err = errors.NewParse("", "unexpected end of input while "+r.open[len(r.open)-1].String()+" is open")
		}
		if err == io.EOF {
			r.eof = true
			break
		}
		if err != nil {
			r.err = err
			r.queue.Reset()
			return err
		}
	}
	if r.queue.Len() == 0 && r.state == documentOpen {
		r.queue.Push(NewEnd(ContentDocument))
		r.state = documentClosed
	}
	return nil
}

// track records the structures opened and closed by newly queued events.
func (r *PullReader) track(events []Event) {
	for _, e := range events {
		switch e.Type().Topology {
		case Start:
			r.open = append(r.open, e.Type().Content)
		case End:
			if len(r.open) > 0 {
				r.open = r.open[:len(r.open)-1]
			}
		}
	}
}

// Peek returns the next event without consuming it.
func (r *PullReader) Peek() (Event, error) {
	if e, ok := r.queue.Front(); ok {
		return e, nil
	}
	if err := r.fill(); err != nil {
		return nil, err
	}
	if e, ok := r.queue.Front(); ok {
		return e, nil
	}
	return nil, io.EOF
}

// Next consumes and returns the next event.
func (r *PullReader) Next() (Event, error) {
	if _, err := r.Peek(); err != nil {
		return nil, err
	}
	e, _ := r.queue.Pop()
	return e, nil
}

// sliceReader replays a fixed event sequence.
type sliceReader struct {
	events []Event
	pos    int
}

// FromSlice returns a reader over an already collected event sequence.
func FromSlice(events []Event) Reader {
	return &sliceReader{events: events}
}

func (r *sliceReader) Peek() (Event, error) {
	if r.pos >= len(r.events) {
		return nil, io.EOF
	}
	return r.events[r.pos], nil
}

func (r *sliceReader) Next() (Event, error) {
	e, err := r.Peek()
	if err == nil {
		r.pos++
	}
	return e, err
}

// Collect drains r into a slice.
func Collect(r Reader) ([]Event, error) {
	var events []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}

// ValidatingReader wraps a reader and checks every event against the nesting
// table. A violation panics.
type ValidatingReader struct {
	r Reader
	v *Validator
}

// NewValidatingReader returns a reader that validates the events of r.
func NewValidatingReader(r Reader) *ValidatingReader {
	return &ValidatingReader{r: r, v: NewValidator()}
}

func (vr *ValidatingReader) Peek() (Event, error) {
	return vr.r.Peek()
}

func (vr *ValidatingReader) Next() (Event, error) {
	e, err := vr.r.Next()
	if err == io.EOF {
		if cerr := vr.v.Close(); cerr != nil {
			panic(cerr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if verr := vr.v.Accept(e); verr != nil {
		panic(verr)
	}
	return e, nil
}
