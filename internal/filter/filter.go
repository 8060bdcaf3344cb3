// Package filter rewrites message headers through configured
// pattern/replacement rules, applied in declaration order.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/maildropd/maildropd/internal/message"
)

// Field names a header a rule may target.
type Field string

const (
	FieldFrom    Field = "From"
	FieldTo      Field = "To"
	FieldSubject Field = "Subject"
)

// ErrEmptyAddress is returned by Rewrite when filtering reduces From or
// To to nothing. A message in that state is dropped, never delivered
// with an empty address field.
var ErrEmptyAddress = errors.New("filter produced empty address field")

// probeValue is used once per rule at load time to exercise the
// replacement template against its own pattern.
const probeValue = "probe@example.invalid"

// ParseField maps a config token to a Field. Matching is
// case-insensitive.
func ParseField(s string) (Field, bool) {
	switch strings.ToLower(s) {
	case "from":
		return FieldFrom, true
	case "to":
		return FieldTo, true
	case "subject":
		return FieldSubject, true
	}
	return "", false
}

// Rule is one compiled pattern/replacement transformation bound to a
// header field. Rules are immutable after load.
type Rule struct {
	Name        string
	Field       Field
	Pattern     *regexp.Regexp
	Replacement string
}

// Compile builds a Rule, validating the pattern and its replacement
// template. The replacement is checked against the pattern's capture
// groups here, not at apply time.
func Compile(name string, field Field, pattern, replacement string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: invalid pattern: %w", name, err)
	}

	if err := validateReplacement(re, replacement); err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", name, err)
	}

	// Exercise the pair once so a panic-prone combination surfaces at
	// load time rather than on live mail.
	_ = re.ReplaceAllString(probeValue, replacement)

	return Rule{Name: name, Field: field, Pattern: re, Replacement: replacement}, nil
}

// refPattern matches group references in a replacement template:
// $1, ${12}, $name, ${name}. "$$" is a literal dollar.
var refPattern = regexp.MustCompile(`\$(\$|\{[^}]*\}|[0-9]+|[A-Za-z_][A-Za-z0-9_]*)`)

// validateReplacement checks that every group reference in the template
// resolves against the pattern's capture groups.
func validateReplacement(re *regexp.Regexp, replacement string) error {
	names := re.SubexpNames()
	for _, m := range refPattern.FindAllStringSubmatch(replacement, -1) {
		ref := m[1]
		if ref == "$" {
			continue
		}
		ref = strings.TrimPrefix(strings.TrimSuffix(ref, "}"), "{")
		if ref == "" {
			return fmt.Errorf("replacement %q: empty group reference", replacement)
		}
		if n, err := strconv.Atoi(ref); err == nil {
			if n > re.NumSubexp() {
				return fmt.Errorf("replacement %q references group %d, pattern has %d", replacement, n, re.NumSubexp())
			}
			continue
		}
		found := false
		for _, name := range names {
			if name == ref {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("replacement %q references unknown group %q", replacement, ref)
		}
	}
	return nil
}

// apply runs the rule over one value.
func (r Rule) apply(value string) string {
	return r.Pattern.ReplaceAllString(value, r.Replacement)
}

// Engine holds the active rule set grouped by target field.
type Engine struct {
	rules map[Field][]Rule
}

// NewEngine groups rules by field, preserving declaration order within
// each field.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{rules: make(map[Field][]Rule)}
	for _, r := range rules {
		e.rules[r.Field] = append(e.rules[r.Field], r)
	}
	return e
}

// RuleCount returns the number of active rules.
func (e *Engine) RuleCount() int {
	n := 0
	for _, rs := range e.rules {
		n += len(rs)
	}
	return n
}

// Apply filters a single header value. Address fields (From, To) are
// split on commas into tokens, each token filtered through the field's
// rule chain in order; tokens reduced to nothing are discarded and the
// survivors rejoined with ", ". Subject is filtered as one unit.
func (e *Engine) Apply(field Field, value string) string {
	rules := e.rules[field]
	if len(rules) == 0 {
		return value
	}

	if field == FieldSubject {
		for _, r := range rules {
			value = r.apply(value)
		}
		return value
	}

	var kept []string
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		for _, r := range rules {
			token = r.apply(token)
		}
		if token != "" {
			kept = append(kept, token)
		}
	}
	return strings.Join(kept, ", ")
}

// Rewrite applies the rule set to a message's From, To and Subject
// headers in place. It returns ErrEmptyAddress when From or To filter
// to empty; an empty Subject is acceptable.
func (e *Engine) Rewrite(msg *message.Message) error {
	for _, field := range []Field{FieldFrom, FieldTo, FieldSubject} {
		if len(e.rules[field]) == 0 {
			continue
		}
		filtered := e.Apply(field, msg.Header.Get(string(field)))
		if filtered == "" && field != FieldSubject {
			return fmt.Errorf("%w: %s", ErrEmptyAddress, field)
		}
		msg.Header.Set(string(field), filtered)
	}
	return nil
}
