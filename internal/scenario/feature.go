package scenario

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Feature is a parsed feature file.
type Feature struct {
	Name       string
	Path       string
	Background []Step
	Scenarios  []Scenario
}

// Scenario is a named list of steps.
type Scenario struct {
	Name  string
	Line  int
	Steps []Step
}

// Step is one line of a scenario. Keyword is Given, When or Then; And
// and But take the keyword of the step before them.
type Step struct {
	Keyword Role
	Text    string
	Line    int
}

// String renders the step as it appeared in the file.
func (s Step) String() string {
	return string(s.Keyword) + " " + s.Text
}

// ParseFile reads and parses the feature file at path.
func ParseFile(path string) (*Feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: open %s: %w", path, err)
	}
	defer f.Close()
	feat, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	feat.Path = path
	return feat, nil
}

// Parse reads a feature from r. Blank lines, # comments and free text
// under the Feature: header are ignored. The header is required and
// every scenario needs at least one step.
func Parse(r io.Reader) (*Feature, error) {
	feat := &Feature{}
	header := false
	var cur *[]Step
	var prev Role
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if rest, ok := cutKeyword(line, "Feature:"); ok {
			feat.Name = rest
			header = true
			cur = nil
			continue
		}
		if _, ok := cutKeyword(line, "Background:"); ok {
			cur = &feat.Background
			prev = ""
			continue
		}
		if rest, ok := cutKeyword(line, "Scenario:"); ok {
			feat.Scenarios = append(feat.Scenarios, Scenario{Name: rest, Line: n})
			cur = &feat.Scenarios[len(feat.Scenarios)-1].Steps
			prev = ""
			continue
		}

		word, text, _ := strings.Cut(line, " ")
		var kw Role
		switch word {
		case "Given":
			kw = RoleGiven
		case "When":
			kw = RoleWhen
		case "Then":
			kw = RoleThen
		case "And", "But", "*":
			if prev == "" {
				return nil, fmt.Errorf("scenario: line %d: %q without a preceding step", n, word)
			}
			kw = prev
		default:
			if cur == nil {
				continue
			}
			return nil, fmt.Errorf("scenario: line %d: unexpected %q", n, line)
		}
		if cur == nil {
			return nil, fmt.Errorf("scenario: line %d: step outside a scenario", n)
		}
		*cur = append(*cur, Step{Keyword: kw, Text: strings.TrimSpace(text), Line: n})
		prev = kw
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scenario: read: %w", err)
	}
	if !header {
		return nil, fmt.Errorf("scenario: missing Feature: header")
	}
	if len(feat.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario: no scenarios")
	}
	for _, s := range feat.Scenarios {
		if len(s.Steps) == 0 {
			return nil, fmt.Errorf("scenario: line %d: scenario %q has no steps", s.Line, s.Name)
		}
	}
	return feat, nil
}

func cutKeyword(line, kw string) (string, bool) {
	if !strings.HasPrefix(line, kw) {
		return "", false
	}
	return strings.TrimSpace(line[len(kw):]), true
}
