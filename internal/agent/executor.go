package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
)

// ActionExecutor resolves symbolic action targets against the live page
// using ordered fallback strategies and performs the resulting interaction.
// Resolution is strictly ordered and deterministic: the first strategy that
// finds a visible element wins, and a later failure on that element
// propagates rather than falling through to the next strategy.
type ActionExecutor struct {
	logger *zap.Logger
	// waitTime is the quiet period applied after every action, success or
	// failure, to avoid racing animations and transitions.
	waitTime time.Duration
}

var _ ActionRunner = (*ActionExecutor)(nil)

// searchResultsWait is the fixed extra quiet period after a search is
// submitted. Result pages render asynchronously well after the URL settles,
// and a snapshot taken too early sees an empty result list.
const searchResultsWait = 2 * time.Second

// NewActionExecutor creates an executor. waitTime bounds the settle delay
// applied after each action.
func NewActionExecutor(logger *zap.Logger, waitTime time.Duration) *ActionExecutor {
	if waitTime <= 0 {
		waitTime = 1500 * time.Millisecond
	}
	return &ActionExecutor{logger: logger.Named("executor"), waitTime: waitTime}
}

// Run dispatches an action to its handler. The returned string is a
// human-readable account of what was done.
func (x *ActionExecutor) Run(ctx context.Context, page PageSession, action schemas.AgentAction) (string, error) {
	switch action.Type {
	case schemas.ActionClick:
		return x.executeClick(ctx, page, action.Target)
	case schemas.ActionTypeText:
		return x.executeType(ctx, page, action.Target, action.Value)
	case schemas.ActionNavigate:
		if err := page.Navigate(ctx, action.Target); err != nil {
			return "", err
		}
		return fmt.Sprintf("navigate: %s", action.Target), nil
	case schemas.ActionWait:
		if err := page.Settle(ctx, x.waitTime); err != nil {
			return "", err
		}
		return "wait: page settle", nil
	case schemas.ActionScroll:
		direction := action.Target
		if direction == "" {
			direction = "down"
		}
		if err := page.Scroll(ctx, direction); err != nil {
			return "", err
		}
		return fmt.Sprintf("scroll: %s", direction), nil
	default:
		return "", fmt.Errorf("unknown action type: %q", action.Type)
	}
}

// -- Strategy planning --

// probe is a single resolution strategy: a named JS expression that either
// tags a matching visible element with the attempt token and yields true,
// or yields false.
type probe struct {
	name   string
	script string
	// search marks probes from the search-field heuristic set; a match
	// through one of these always triggers two-phase submission.
	search bool
}

// probePrelude defines the helpers shared by every probe script. A strategy
// only counts as found if the element is currently visible.
const probePrelude = `
    const visible = (el) => {
        const r = el.getBoundingClientRect();
        if (r.width <= 0 || r.height <= 0) return false;
        const s = window.getComputedStyle(el);
        return s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0';
    };
    const norm = (t) => (t || '').trim().toLowerCase();
    const tag = (el) => { el.setAttribute('data-gp-target', TOKEN); return true; };
`

func probeScript(target, token, body string) string {
	return fmt.Sprintf("(() => {\n    const TOKEN = %s;\n    const TARGET = %s;\n%s\n%s\n})()",
		jsonEncode(token), jsonEncode(target), probePrelude, body)
}

// planClickProbes returns the ordered strategies for resolving a click
// target. Ordering is fixed; no randomness, so resolution against an
// unchanged page is idempotent.
func planClickProbes(target, token string) []probe {
	probes := []probe{
		{name: "exact-text", script: probeScript(target, token, `
    for (const el of document.querySelectorAll('button, a, input[type="submit"], input[type="button"], [role="button"]')) {
        if (!visible(el)) continue;
        if (norm(el.innerText || el.value) === norm(TARGET)) return tag(el);
    }
    return false;`)},
		{name: "partial-text", script: probeScript(target, token, `
    if (!norm(TARGET)) return false;
    for (const el of document.querySelectorAll('button, a, input[type="submit"], input[type="button"], [role="button"]')) {
        if (!visible(el)) continue;
        if (norm(el.innerText || el.value).includes(norm(TARGET))) return tag(el);
    }
    return false;`)},
		{name: "role-button-name", script: probeScript(target, token, `
    if (!norm(TARGET)) return false;
    for (const el of document.querySelectorAll('button, input[type="submit"], input[type="button"]')) {
        if (!visible(el)) continue;
        const name = norm(el.getAttribute('aria-label') || el.value || el.innerText);
        if (name.includes(norm(TARGET))) return tag(el);
    }
    return false;`)},
		{name: "role-link-name", script: probeScript(target, token, `
    if (!norm(TARGET)) return false;
    for (const el of document.querySelectorAll('a[href]')) {
        if (!visible(el)) continue;
        const name = norm(el.getAttribute('aria-label') || el.innerText);
        if (name.includes(norm(TARGET))) return tag(el);
    }
    return false;`)},
		{name: "aria-label", script: probeScript(target, token, `
    if (!norm(TARGET)) return false;
    for (const el of document.querySelectorAll('[aria-label]')) {
        if (!visible(el)) continue;
        if (norm(el.getAttribute('aria-label')).includes(norm(TARGET))) return tag(el);
    }
    return false;`)},
		{name: "placeholder", script: probeScript(target, token, `
    if (!norm(TARGET)) return false;
    for (const el of document.querySelectorAll('[placeholder]')) {
        if (!visible(el)) continue;
        if (norm(el.getAttribute('placeholder')).includes(norm(TARGET))) return tag(el);
    }
    return false;`)},
	}

	if looksLikeSelector(target) {
		probes = append(probes, probe{name: "raw-selector", script: probeScript(target, token, `
    try {
        const el = document.querySelector(TARGET);
        if (el && visible(el)) return tag(el);
    } catch (e) {}
    return false;`)})
	}

	probes = append(probes, probe{name: "generic-text-search", script: probeScript(target, token, `
    if (!norm(TARGET)) return false;
    for (const el of document.body.querySelectorAll('*')) {
        if (el.children.length > 0 || !visible(el)) continue;
        if (norm(el.innerText).includes(norm(TARGET))) {
            return tag(el.closest('button, a, [role="button"], [onclick]') || el);
        }
    }
    return false;`)})

	return probes
}

// planTypeProbes returns the ordered strategies for resolving a type target.
// The search-specific heuristics are appended only when the target or value
// suggests a search field, and are attempted before the call is failed.
func planTypeProbes(target, value, token string) []probe {
	probes := []probe{
		{name: "label-exact", script: probeScript(target, token, `
    for (const lab of document.querySelectorAll('label')) {
        if (norm(lab.innerText) !== norm(TARGET)) continue;
        const forId = lab.getAttribute('for');
        const el = (forId && document.getElementById(forId)) || lab.querySelector('input, select, textarea');
        if (el && visible(el)) return tag(el);
    }
    return false;`)},
		{name: "label-partial", script: probeScript(target, token, `
    if (!norm(TARGET)) return false;
    for (const lab of document.querySelectorAll('label')) {
        if (!norm(lab.innerText).includes(norm(TARGET))) continue;
        const forId = lab.getAttribute('for');
        const el = (forId && document.getElementById(forId)) || lab.querySelector('input, select, textarea');
        if (el && visible(el)) return tag(el);
    }
    return false;`)},
		{name: "placeholder", script: probeScript(target, token, `
    if (!norm(TARGET)) return false;
    for (const el of document.querySelectorAll('input[placeholder], textarea[placeholder]')) {
        if (!visible(el)) continue;
        if (norm(el.getAttribute('placeholder')).includes(norm(TARGET))) return tag(el);
    }
    return false;`)},
		{name: "attr-id-name", script: probeScript(target, token, `
    const want = norm(TARGET).replace(/[^a-z0-9]/g, '');
    if (!want) return false;
    for (const el of document.querySelectorAll('input:not([type="hidden"]), textarea, select')) {
        if (!visible(el)) continue;
        const have = norm(el.id + ' ' + el.name).replace(/[^a-z0-9]/g, '');
        if (have.includes(want)) return tag(el);
    }
    return false;`)},
	}

	if suggestsSearch(target, value) {
		probes = append(probes,
			probe{name: "search-type", search: true, script: probeScript(target, token, `
    for (const el of document.querySelectorAll('input[type="search"]')) {
        if (visible(el)) return tag(el);
    }
    return false;`)},
			probe{name: "search-name", search: true, script: probeScript(target, token, `
    for (const el of document.querySelectorAll('input[name="q"], input[name="query"], input[name="search"], input[name="s"]')) {
        if (visible(el)) return tag(el);
    }
    return false;`)},
			probe{name: "search-attr", search: true, script: probeScript(target, token, `
    for (const el of document.querySelectorAll('input, textarea')) {
        if (!visible(el)) continue;
        const attrs = norm(el.getAttribute('placeholder') + ' ' + el.getAttribute('aria-label') + ' ' + el.className + ' ' + el.id);
        if (attrs.includes('search')) return tag(el);
    }
    return false;`)},
			probe{name: "search-any-text-input", search: true, script: probeScript(target, token, `
    for (const el of document.querySelectorAll('input[type="text"], input:not([type])')) {
        if (visible(el)) return tag(el);
    }
    return false;`)},
		)
	}

	return probes
}

var selectorPattern = regexp.MustCompile(`^[a-zA-Z][\w-]*(\.[\w-]+|#[\w-]+)`)

// looksLikeSelector reports whether a target string is syntactically a CSS
// selector rather than a visible-text description.
func looksLikeSelector(target string) bool {
	if target == "" {
		return false
	}
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, ".") || strings.HasPrefix(target, "[") {
		return true
	}
	return !strings.Contains(target, " ") && selectorPattern.MatchString(target)
}

// suggestsSearch reports whether a type action looks like a site-search
// interaction.
func suggestsSearch(target, value string) bool {
	return strings.Contains(strings.ToLower(target), "search") ||
		strings.Contains(strings.ToLower(value), "search")
}

// -- Execution --

// executeClick resolves the target and dispatches a native click.
func (x *ActionExecutor) executeClick(ctx context.Context, page PageSession, target string) (string, error) {
	token := uuid.New().String()
	matched, err := x.resolve(ctx, page, planClickProbes(target, token))
	if err != nil {
		return "", fmt.Errorf("could not resolve click target %q: %w", target, err)
	}

	sel := tokenSelector(token)
	clickErr := page.Click(ctx, sel)
	x.cleanupToken(ctx, page, token)
	if clickErr != nil {
		return "", fmt.Errorf("click on %q (via %s) failed: %w", target, matched, clickErr)
	}

	x.logger.Debug("Click executed", zap.String("target", target), zap.String("strategy", matched))
	return fmt.Sprintf("click: %s (via %s)", target, matched), nil
}

// executeType resolves the field, clears and fills it, and applies the
// two-phase submission behavior for recognized search fields.
func (x *ActionExecutor) executeType(ctx context.Context, page PageSession, target, value string) (string, error) {
	token := uuid.New().String()
	probes := planTypeProbes(target, value, token)
	matched, err := x.resolve(ctx, page, probes)
	if err != nil {
		return "", fmt.Errorf("could not resolve type target %q: %w", target, err)
	}

	sel := tokenSelector(token)
	if err := page.Type(ctx, sel, value); err != nil {
		x.cleanupToken(ctx, page, token)
		return "", fmt.Errorf("typing into %q (via %s) failed: %w", target, matched, err)
	}

	isSearch := strings.HasPrefix(matched, "search-")
	if !isSearch {
		// The element may still be a search box resolved through a
		// generic strategy; check its own attributes.
		_ = page.Evaluate(ctx, isSearchFieldScript(token), &isSearch)
	}

	detail := fmt.Sprintf("type: %s (via %s)", target, matched)
	if isSearch {
		submitted, err := x.submitSearch(ctx, page, token)
		x.cleanupToken(ctx, page, token)
		if err != nil {
			return "", fmt.Errorf("search submission for %q failed: %w", target, err)
		}
		return detail + "; " + submitted, nil
	}

	x.cleanupToken(ctx, page, token)
	if err := page.Settle(ctx, x.waitTime); err != nil {
		return "", err
	}
	return detail, nil
}

// submitSearch implements the two-phase search submission: Enter first, and
// if the page shows no evidence of navigating, a submit-style control near
// the field. Single-page apps vary in whether Enter alone triggers anything.
func (x *ActionExecutor) submitSearch(ctx context.Context, page PageSession, token string) (string, error) {
	urlBefore, _ := page.CurrentURL(ctx)

	if err := page.PressEnter(ctx, tokenSelector(token)); err != nil {
		return "", fmt.Errorf("pressing Enter failed: %w", err)
	}
	if err := page.Settle(ctx, x.waitTime); err != nil {
		return "", err
	}

	urlAfter, _ := page.CurrentURL(ctx)
	if urlAfter != "" && urlAfter != urlBefore {
		if err := page.Settle(ctx, searchResultsWait); err != nil {
			return "", err
		}
		return "submitted search via Enter", nil
	}

	// No navigation observed; look for a submit control near the field.
	var found bool
	if err := page.Evaluate(ctx, searchSubmitScript(token), &found); err != nil || !found {
		// Enter may still have triggered an in-page update we cannot
		// observe via the URL; treat a missing submit button as done.
		if err := page.Settle(ctx, searchResultsWait); err != nil {
			return "", err
		}
		return "submitted search via Enter (no submit control found)", nil
	}
	if err := page.Click(ctx, fmt.Sprintf(`[data-gp-submit=%s]`, jsonEncode(token))); err != nil {
		return "", fmt.Errorf("clicking search submit control failed: %w", err)
	}
	if err := page.Settle(ctx, searchResultsWait); err != nil {
		return "", err
	}
	return "submitted search via submit control", nil
}

// resolve runs the probes in order and returns the name of the first
// strategy that tagged a visible element. Probe evaluation errors are
// treated as non-matches; exhaustion is an error.
func (x *ActionExecutor) resolve(ctx context.Context, page PageSession, probes []probe) (string, error) {
	for _, p := range probes {
		var found bool
		if err := page.Evaluate(ctx, p.script, &found); err != nil {
			x.logger.Debug("Resolution probe errored", zap.String("strategy", p.name), zap.Error(err))
			continue
		}
		if found {
			return p.name, nil
		}
	}
	return "", fmt.Errorf("all resolution strategies exhausted")
}

func tokenSelector(token string) string {
	return fmt.Sprintf(`[data-gp-target=%s]`, jsonEncode(token))
}

// cleanupToken removes the tagging attributes, best effort. The page may
// have navigated away, in which case there is nothing to clean.
func (x *ActionExecutor) cleanupToken(ctx context.Context, page PageSession, token string) {
	script := fmt.Sprintf(`(() => {
    for (const el of document.querySelectorAll('[data-gp-target=%s], [data-gp-submit=%s]')) {
        el.removeAttribute('data-gp-target');
        el.removeAttribute('data-gp-submit');
    }
    return true;
})()`, jsonEncode(token), jsonEncode(token))
	var ok bool
	_ = page.Evaluate(ctx, script, &ok)
}

func isSearchFieldScript(token string) string {
	return fmt.Sprintf(`(() => {
    const el = document.querySelector('[data-gp-target=%s]');
    if (!el) return false;
    const attrs = ((el.getAttribute('placeholder') || '') + ' ' + (el.getAttribute('aria-label') || '') + ' ' + el.className + ' ' + el.id).toLowerCase();
    return el.type === 'search' || attrs.includes('search');
})()`, jsonEncode(token))
}

func searchSubmitScript(token string) string {
	return fmt.Sprintf(`(() => {
    const TOKEN = %s;
%s
    const el = document.querySelector('[data-gp-target=' + JSON.stringify(TOKEN) + ']');
    if (!el) return false;
    const scope = el.closest('form') || document;
    let btn = scope.querySelector('button[type="submit"], input[type="submit"]');
    if (!btn || !visible(btn)) {
        btn = Array.from(scope.querySelectorAll('button, [role="button"]')).find(b => visible(b) && norm(b.innerText).includes('search'));
    }
    if (btn && visible(btn)) { btn.setAttribute('data-gp-submit', TOKEN); return true; }
    return false;
})()`, jsonEncode(token), probePrelude)
}

// jsonEncode safely encodes a value for embedding in a JS snippet or an
// attribute selector.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
