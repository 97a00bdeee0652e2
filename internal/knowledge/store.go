// Package knowledge holds the interview fact base and the skill reasoner
// built on top of it.
package knowledge

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/factstore"
)

// Wildcard matches any argument in a Query pattern and binds its value.
const Wildcard = "$_"

// Match is one fact returned by Query. Bindings holds the values matched by
// wildcard positions, in pattern order.
type Match struct {
	Args     []string
	Bindings []string
}

// Store is an append-only relational fact store. Facts are (relation, args)
// tuples; adding the same tuple twice is a no-op. It is safe for concurrent
// use.
type Store struct {
	mu    sync.RWMutex
	facts factstore.FactStore
	order map[string]int
	next  int
}

// NewStore returns an empty fact store.
func NewStore() *Store {
	return &Store{
		facts: factstore.NewSimpleInMemoryStore(),
		order: make(map[string]int),
	}
}

// AddAtom appends relation(args...). Arguments may be strings or integers.
// It reports whether the fact was new.
func (s *Store) AddAtom(relation string, args ...any) (bool, error) {
	if relation == "" {
		return false, fmt.Errorf("relation name is empty")
	}
	terms := make([]ast.BaseTerm, 0, len(args))
	rendered := make([]string, 0, len(args))
	for i, a := range args {
		term, err := toTerm(a)
		if err != nil {
			return false, fmt.Errorf("%s argument %d: %w", relation, i, err)
		}
		terms = append(terms, term)
		rendered = append(rendered, render(term))
	}

	atom := ast.Atom{
		Predicate: ast.PredicateSym{Symbol: relation, Arity: len(terms)},
		Args:      terms,
	}
	key := factKey(relation, rendered)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.order[key]; seen {
		return false, nil
	}
	s.facts.Add(atom)
	s.order[key] = s.next
	s.next++
	return true, nil
}

// Query returns facts of relation matching pattern, in insertion order.
// Literal positions must match exactly; Wildcard positions match anything.
// An unknown relation, or a pattern of the wrong arity, yields no matches.
// A fact store failure is logged and yields the matches read so far.
func (s *Store) Query(relation string, pattern ...string) []Match {
	matches, err := s.Lookup(relation, pattern...)
	if err != nil {
		slog.Warn("fact query failed", "relation", relation, "arity", len(pattern), "error", err)
	}
	return matches
}

// Lookup is Query with the fact store error returned to the caller.
func (s *Store) Lookup(relation string, pattern ...string) ([]Match, error) {
	sym := ast.PredicateSym{Symbol: relation, Arity: len(pattern)}

	type ranked struct {
		pos int
		m   Match
	}
	var found []ranked

	s.mu.RLock()
	err := s.facts.GetFacts(ast.NewQuery(sym), func(a ast.Atom) error {
		args := make([]string, len(a.Args))
		for i, t := range a.Args {
			args[i] = render(t)
		}
		var bindings []string
		for i, p := range pattern {
			if p == Wildcard {
				bindings = append(bindings, args[i])
				continue
			}
			if args[i] != p {
				return nil
			}
		}
		found = append(found, ranked{
			pos: s.order[factKey(relation, args)],
			m:   Match{Args: args, Bindings: bindings},
		})
		return nil
	})
	s.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	out := make([]Match, len(found))
	for i, r := range found {
		out[i] = r.m
	}
	if err != nil {
		return out, fmt.Errorf("query %s/%d: %w", relation, len(pattern), err)
	}
	return out, nil
}

// Count returns the number of stored facts.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Relations lists the stored relation names with their arity, sorted.
func (s *Store) Relations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, sym := range s.facts.ListPredicates() {
		out = append(out, sym.Symbol+"/"+strconv.Itoa(sym.Arity))
	}
	sort.Strings(out)
	return out
}

func toTerm(v any) (ast.BaseTerm, error) {
	switch x := v.(type) {
	case string:
		return ast.String(x), nil
	case int:
		return ast.Number(int64(x)), nil
	case int64:
		return ast.Number(x), nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", v)
	}
}

func render(t ast.BaseTerm) string {
	c, ok := t.(ast.Constant)
	if !ok {
		return t.String()
	}
	if c.Type == ast.NumberType {
		return strconv.FormatInt(c.NumValue, 10)
	}
	return c.Symbol
}

func factKey(relation string, args []string) string {
	return relation + "\x00" + strings.Join(args, "\x00")
}
