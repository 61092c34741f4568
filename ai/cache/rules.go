package cache

import (
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// Utterances carrying a duration or an implicit direction need the exact
// per-call value extracted, so they never go through the cache.
var bypassPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"duration", regexp.MustCompile(`\bfür\s+\d+\s*(?:minuten?|stunden?|sekunden?)\b`)},
	{"duration", regexp.MustCompile(`\bfür\s+(?:eine?|kurze?)\s*(?:zeit|weile)\b`)},
	{"duration", regexp.MustCompile(`\btemporär`)},
	{"duration", regexp.MustCompile(`\bvorübergehend\b`)},
	{"duration", regexp.MustCompile(`\bzeitlich\s+begrenzt\b`)},
	{"duration", regexp.MustCompile(`\bfor\s+\d+\s*(?:seconds?|secs?|minutes?|mins?|hours?|hrs?)\b`)},
	{"duration", regexp.MustCompile(`\bfor\s+a\s+(?:while|bit|moment)\b`)},
	{"duration", regexp.MustCompile(`\btemporarily\b`)},
	{"implicit_direction", regexp.MustCompile(`\bzu\s+(?:dunkel|hell|kalt|warm)\b`)},
	{"implicit_direction", regexp.MustCompile(`\bzu\s+heiß`)},
	{"implicit_direction", regexp.MustCompile(`\bes\s+ist\s+(?:dunkel|hell)\b`)},
	{"implicit_direction", regexp.MustCompile(`\b(?:dunkel|hell)\s+hier\b`)},
	{"implicit_direction", regexp.MustCompile(`\btoo\s+(?:dark|bright|cold|warm|hot)\b`)},
	{"implicit_direction", regexp.MustCompile(`\b(?:dark|bright)\s+in\s+here\b`)},
}

// bypassRule reports which bypass class text falls into, if any.
func bypassRule(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range bypassPatterns {
		if p.re.MatchString(lower) {
			return p.name, true
		}
	}
	return "", false
}

// Intents whose content is unique per call.
var nonRepeatableIntents = map[string]struct{}{
	"HassCalendarCreate": {},
	"HassCreateEvent":    {},
	"HassTimerSet":       {},
	"HassStartTimer":     {},
}

func isNonRepeatable(intent string) bool {
	_, ok := nonRepeatableIntents[intent]
	return ok
}

// Slots computed at execution time; replaying a cached entry recomputes them.
var volatileSlots = []string{"brightness", "_prerequisites"}

func stripVolatile(slots map[string]any) map[string]any {
	out := copySlots(slots)
	for _, k := range volatileSlots {
		delete(out, k)
	}
	return out
}

// ExclusionRules are operator-supplied CEL predicates over a store request.
// A request matching any rule is not cached. Variables: text (string),
// intent (string), slots (map), targets (list of string).
type ExclusionRules struct {
	programs []cel.Program
	sources  []string
}

// CompileExclusionRules compiles each expression; every one must yield a bool.
func CompileExclusionRules(exprs []string) (*ExclusionRules, error) {
	rules := &ExclusionRules{}
	if len(exprs) == 0 {
		return rules, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("intent", cel.StringType),
		cel.Variable("slots", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("targets", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create CEL environment")
	}

	for _, expr := range exprs {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, errors.Wrapf(issues.Err(), "compile exclusion rule %q", expr)
		}
		if ast.OutputType() != cel.BoolType {
			return nil, errors.Errorf("exclusion rule %q must return bool, got %v", expr, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "program exclusion rule %q", expr)
		}
		rules.programs = append(rules.programs, prg)
		rules.sources = append(rules.sources, expr)
	}
	return rules, nil
}

// Len returns the number of compiled rules.
func (r *ExclusionRules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.programs)
}

// Match returns the first rule that evaluates to true. Rules that fail to
// evaluate (e.g. a missing slot key) do not match.
func (r *ExclusionRules) Match(text, intent string, slots map[string]any, targets []string) (string, bool) {
	if r.Len() == 0 {
		return "", false
	}
	if slots == nil {
		slots = map[string]any{}
	}
	if targets == nil {
		targets = []string{}
	}
	vars := map[string]any{
		"text":    text,
		"intent":  intent,
		"slots":   slots,
		"targets": targets,
	}
	for i, prg := range r.programs {
		out, _, err := prg.Eval(vars)
		if err != nil {
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			return r.sources[i], true
		}
	}
	return "", false
}
