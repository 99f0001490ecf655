// Package transition holds the explicit state graphs for consultations, lab orders and
// pharmacy orders. Validation is pure: it never touches storage or the clock.
package transition

import (
	"sort"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// Guard checks an edge precondition against the caller supplied context.
type Guard[C any] func(C) error

// Edge is one legal (from, event) → to triple.
type Edge[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Machine is a directed graph of legal transitions for one entity type.
type Machine[S ~string, E ~string, C any] struct {
	entity   model.EntityType
	edges    map[S]map[E]S
	terminal map[S]bool
	guards   map[E]Guard[C]
}

func newMachine[S ~string, E ~string, C any](entity model.EntityType, terminal ...S) *Machine[S, E, C] {
	m := &Machine[S, E, C]{
		entity:   entity,
		edges:    make(map[S]map[E]S),
		terminal: make(map[S]bool),
		guards:   make(map[E]Guard[C]),
	}
	for _, s := range terminal {
		m.terminal[s] = true
	}
	return m
}

func (m *Machine[S, E, C]) edge(event E, to S, from ...S) *Machine[S, E, C] {
	for _, f := range from {
		if m.terminal[f] {
			panic("transition: edge out of terminal state " + string(f))
		}
		if m.edges[f] == nil {
			m.edges[f] = make(map[E]S)
		}
		m.edges[f][event] = to
	}
	return m
}

// fromAnyLive adds event→to from every non-terminal state in states.
func (m *Machine[S, E, C]) fromAnyLive(event E, to S, states []S) *Machine[S, E, C] {
	for _, s := range states {
		if !m.terminal[s] {
			m.edge(event, to, s)
		}
	}
	return m
}

func (m *Machine[S, E, C]) guard(event E, g Guard[C]) *Machine[S, E, C] {
	m.guards[event] = g
	return m
}

// Validate returns the next status or a typed rejection. Graph violations come back as
// InvalidTransition, unmet preconditions as PreconditionMissing.
func (m *Machine[S, E, C]) Validate(from S, event E, ctx C) (S, error) {
	if m.terminal[from] {
		return from, apperrors.NewInvalidTransition(entityLabel(m.entity), string(from), string(event))
	}
	to, ok := m.edges[from][event]
	if !ok {
		return from, apperrors.NewInvalidTransition(entityLabel(m.entity), string(from), string(event))
	}
	if g, ok := m.guards[event]; ok {
		if err := g(ctx); err != nil {
			return from, err
		}
	}
	return to, nil
}

// Allowed reports whether the graph has an edge, ignoring guards.
func (m *Machine[S, E, C]) Allowed(from S, event E) bool {
	_, ok := m.edges[from][event]
	return ok
}

func (m *Machine[S, E, C]) IsTerminal(s S) bool {
	return m.terminal[s]
}

// Edges lists every legal edge in a stable order.
func (m *Machine[S, E, C]) Edges() []Edge[S, E] {
	var out []Edge[S, E]
	for from, byEvent := range m.edges {
		for ev, to := range byEvent {
			out = append(out, Edge[S, E]{From: from, Event: ev, To: to})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].Event < out[j].Event
	})
	return out
}

func entityLabel(t model.EntityType) string {
	switch t {
	case model.EntityLabOrder:
		return "lab order"
	case model.EntityPharmacyOrder:
		return "pharmacy order"
	case model.EntityConsultation:
		return "consultation"
	}
	return string(t)
}

func precondition(ok bool, message string) error {
	if ok {
		return nil
	}
	return apperrors.NewPreconditionMissing(message)
}
