// Package scenario runs plain-text feature files against a registry of
// step definitions. Step patterns use {name:w} placeholders for single
// word arguments; everything else in a pattern matches literally.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Role restricts which keyword a step definition answers to.
type Role string

// Step roles. RoleAny definitions answer to every keyword.
const (
	RoleGiven Role = "Given"
	RoleWhen  Role = "When"
	RoleThen  Role = "Then"
	RoleAny   Role = "Step"
)

var (
	// ErrUndefined is returned when no definition matches a step.
	ErrUndefined = errors.New("scenario: undefined step")

	// ErrAmbiguous is returned when more than one definition matches.
	ErrAmbiguous = errors.New("scenario: ambiguous step")
)

// StepFunc implements a step. args holds the placeholder values by name.
type StepFunc[S any] func(ctx context.Context, sc *Context[S], args map[string]string) error

// Definition is a registered step.
type Definition[S any] struct {
	Role    Role
	Pattern string
	re      *regexp.Regexp
	fn      StepFunc[S]
}

// Registry holds the step definitions for scenarios over state S.
type Registry[S any] struct {
	mu   sync.RWMutex
	defs []*Definition[S]
}

// NewRegistry returns an empty Registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{}
}

// Given registers a step answering to Given.
func (r *Registry[S]) Given(pattern string, fn StepFunc[S]) { r.add(RoleGiven, pattern, fn) }

// When registers a step answering to When.
func (r *Registry[S]) When(pattern string, fn StepFunc[S]) { r.add(RoleWhen, pattern, fn) }

// Then registers a step answering to Then.
func (r *Registry[S]) Then(pattern string, fn StepFunc[S]) { r.add(RoleThen, pattern, fn) }

// Step registers a step answering to any keyword.
func (r *Registry[S]) Step(pattern string, fn StepFunc[S]) { r.add(RoleAny, pattern, fn) }

// add panics on a malformed pattern, like regexp.MustCompile; patterns
// are fixed at registration time.
func (r *Registry[S]) add(role Role, pattern string, fn StepFunc[S]) {
	re, err := compilePattern(pattern)
	if err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = append(r.defs, &Definition[S]{Role: role, Pattern: pattern, re: re, fn: fn})
}

// Patterns lists the registered patterns in registration order.
func (r *Registry[S]) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.defs))
	for i, d := range r.defs {
		out[i] = string(d.Role) + " " + d.Pattern
	}
	return out
}

// Match finds the definition for text under role. RoleAny matches
// definitions of every role, as used by behave-like composition.
func (r *Registry[S]) Match(role Role, text string) (*Definition[S], map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *Definition[S]
	var args map[string]string
	for _, d := range r.defs {
		if role != RoleAny && d.Role != RoleAny && d.Role != role {
			continue
		}
		m := d.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if found != nil {
			return nil, nil, fmt.Errorf("%w: %q matches %q and %q", ErrAmbiguous, text, found.Pattern, d.Pattern)
		}
		found = d
		args = make(map[string]string)
		for i, name := range d.re.SubexpNames() {
			if name != "" {
				args[name] = m[i]
			}
		}
	}
	if found == nil {
		return nil, nil, fmt.Errorf("%w: %s %q", ErrUndefined, role, text)
	}
	return found, args, nil
}

var placeholderRe = regexp.MustCompile(`\{(\w+)(?::(\w))?\}`)

// compilePattern turns "my {name:w} build" into an anchored regexp with
// a named group per placeholder. Type w is a word; no type matches any
// text.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		name := pattern[loc[2]:loc[3]]
		kind := ""
		if loc[4] >= 0 {
			kind = pattern[loc[4]:loc[5]]
		}
		switch kind {
		case "w":
			fmt.Fprintf(&b, `(?P<%s>\w+)`, name)
		case "d":
			fmt.Fprintf(&b, `(?P<%s>-?\d+)`, name)
		case "":
			fmt.Fprintf(&b, `(?P<%s>.+?)`, name)
		default:
			return nil, fmt.Errorf("scenario: pattern %q: unknown placeholder type %q", pattern, kind)
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("scenario: pattern %q: %w", pattern, err)
	}
	return re, nil
}
