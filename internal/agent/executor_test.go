package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/veloxpay/guestpay/api/schemas"
)

func testExecutor(t *testing.T) *ActionExecutor {
	t.Helper()
	return NewActionExecutor(zaptest.NewLogger(t), 10*time.Millisecond)
}

func probeNames(probes []probe) []string {
	names := make([]string, 0, len(probes))
	for _, p := range probes {
		names = append(names, p.name)
	}
	return names
}

func TestPlanClickProbes_Order(t *testing.T) {
	names := probeNames(planClickProbes("Pay as Guest", "tok"))
	assert.Equal(t, []string{
		"exact-text",
		"partial-text",
		"role-button-name",
		"role-link-name",
		"aria-label",
		"placeholder",
		"generic-text-search",
	}, names)

	// A selector-shaped target inserts the raw-selector strategy before the
	// last-resort text search.
	names = probeNames(planClickProbes("#guest-pay-btn", "tok"))
	assert.Equal(t, []string{
		"exact-text",
		"partial-text",
		"role-button-name",
		"role-link-name",
		"aria-label",
		"placeholder",
		"raw-selector",
		"generic-text-search",
	}, names)
}

func TestPlanClickProbes_Deterministic(t *testing.T) {
	a := probeNames(planClickProbes("Continue", "tok-1"))
	b := probeNames(planClickProbes("Continue", "tok-2"))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("probe plan changed between identical targets (-first +second):\n%s", diff)
	}
}

func TestPlanTypeProbes_SearchGating(t *testing.T) {
	base := []string{"label-exact", "label-partial", "placeholder", "attr-id-name"}

	names := probeNames(planTypeProbes("Account Number", "12345", "tok"))
	assert.Equal(t, base, names)

	names = probeNames(planTypeProbes("Search", "acme water guest pay", "tok"))
	assert.Equal(t, append(append([]string{}, base...),
		"search-type", "search-name", "search-attr", "search-any-text-input"), names)
}

func TestLooksLikeSelector(t *testing.T) {
	assert.True(t, looksLikeSelector("#pay-now"))
	assert.True(t, looksLikeSelector(".btn-primary"))
	assert.True(t, looksLikeSelector(`[data-testid="guest-pay"]`))
	assert.True(t, looksLikeSelector("button#submit"))
	assert.False(t, looksLikeSelector("Pay as Guest"))
	assert.False(t, looksLikeSelector("Continue"))
	assert.False(t, looksLikeSelector(""))
}

func TestRun_ClickFirstMatchWins(t *testing.T) {
	x := testExecutor(t)
	page := newFakePage()

	// The second strategy (partial-text) matches; earlier and later probes
	// must not be consulted once it does.
	var probed []string
	page.evaluateFn = func(script string, res interface{}) error {
		b, ok := res.(*bool)
		if !ok {
			return nil
		}
		switch {
		case strings.Contains(script, "=== norm(TARGET)) return tag(el)"):
			probed = append(probed, "exact")
			*b = false
		case strings.Contains(script, "includes(norm(TARGET))"):
			probed = append(probed, "match")
			*b = true
		default:
			*b = false
		}
		return nil
	}

	detail, err := x.Run(context.Background(), page, schemas.AgentAction{
		Type:   schemas.ActionClick,
		Target: "Pay as Guest",
	})
	require.NoError(t, err)
	assert.Contains(t, detail, "partial-text")
	require.Len(t, page.clicks, 1)
	assert.Contains(t, page.clicks[0], "data-gp-target")
	// Resolution stopped at the first match.
	assert.Equal(t, []string{"exact", "match"}, probed)
}

func TestRun_ClickExhaustedStrategies(t *testing.T) {
	x := testExecutor(t)
	page := newFakePage()

	_, err := x.Run(context.Background(), page, schemas.AgentAction{
		Type:   schemas.ActionClick,
		Target: "Nonexistent Button",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not resolve click target")
	assert.Empty(t, page.clicks)
}

func TestRun_ClickFailureOnMatchedElementPropagates(t *testing.T) {
	x := testExecutor(t)
	page := newFakePage()
	page.evaluateFn = func(script string, res interface{}) error {
		if b, ok := res.(*bool); ok {
			*b = true
		}
		return nil
	}
	page.clickFn = func(string) error { return errors.New("node detached") }

	_, err := x.Run(context.Background(), page, schemas.AgentAction{
		Type:   schemas.ActionClick,
		Target: "Continue",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node detached")
}

func TestRun_TypeFillsResolvedField(t *testing.T) {
	x := testExecutor(t)
	page := newFakePage()
	page.evaluateFn = func(script string, res interface{}) error {
		b, ok := res.(*bool)
		if !ok {
			return nil
		}
		// Match only the first type strategy; the search-field check and
		// cleanup probes come through with different script shapes.
		*b = strings.Contains(script, "norm(lab.innerText) !== norm(TARGET)")
		return nil
	}

	detail, err := x.Run(context.Background(), page, schemas.AgentAction{
		Type:   schemas.ActionTypeText,
		Target: "Account Number",
		Value:  "123456789",
	})
	require.NoError(t, err)
	assert.Contains(t, detail, "label-exact")
	require.Len(t, page.typed, 1)
	for sel, text := range page.typed {
		assert.Contains(t, sel, "data-gp-target")
		assert.Equal(t, "123456789", text)
	}
}

func TestRun_SearchSubmitViaEnterWhenURLChanges(t *testing.T) {
	x := testExecutor(t)
	page := newFakePage()

	var entered bool
	urls := []string{"https://acme.example/", "https://acme.example/search?q=guest+pay"}
	page.currentURLFn = func() (string, error) {
		if entered {
			return urls[1], nil
		}
		return urls[0], nil
	}
	page.pressEnterFn = func(string) error {
		entered = true
		return nil
	}
	page.evaluateFn = func(script string, res interface{}) error {
		b, ok := res.(*bool)
		if !ok {
			return nil
		}
		*b = strings.Contains(script, `input[type="search"]`)
		return nil
	}

	detail, err := x.Run(context.Background(), page, schemas.AgentAction{
		Type:   schemas.ActionTypeText,
		Target: "Search",
		Value:  "guest pay",
	})
	require.NoError(t, err)
	assert.Contains(t, detail, "search-type")
	assert.Contains(t, detail, "via Enter")
	// No fallback click was needed.
	assert.Empty(t, page.clicks)
}

func TestRun_SearchSubmitFallsBackToButton(t *testing.T) {
	x := testExecutor(t)
	page := newFakePage()
	page.currentURLFn = func() (string, error) { return "https://acme.example/", nil }
	page.evaluateFn = func(script string, res interface{}) error {
		b, ok := res.(*bool)
		if !ok {
			return nil
		}
		switch {
		case strings.Contains(script, `input[type="search"]`):
			*b = true
		case strings.Contains(script, "data-gp-submit"):
			// The submit-control probe tags a button.
			*b = strings.Contains(script, "closest('form')")
		default:
			*b = false
		}
		return nil
	}

	detail, err := x.Run(context.Background(), page, schemas.AgentAction{
		Type:   schemas.ActionTypeText,
		Target: "Search",
		Value:  "guest pay",
	})
	require.NoError(t, err)
	assert.Contains(t, detail, "submit control")
	require.Len(t, page.clicks, 1)
	assert.Contains(t, page.clicks[0], "data-gp-submit")
	assert.Contains(t, page.settles, searchResultsWait,
		"search results need the extra quiet period before the next snapshot")
}

func TestRun_SearchSubmitWaitsForResults(t *testing.T) {
	x := testExecutor(t)
	page := newFakePage()

	var entered bool
	page.currentURLFn = func() (string, error) {
		if entered {
			return "https://acme.example/search?q=guest+pay", nil
		}
		return "https://acme.example/", nil
	}
	page.pressEnterFn = func(string) error {
		entered = true
		return nil
	}
	page.evaluateFn = func(script string, res interface{}) error {
		b, ok := res.(*bool)
		if !ok {
			return nil
		}
		*b = strings.Contains(script, `input[type="search"]`)
		return nil
	}

	_, err := x.Run(context.Background(), page, schemas.AgentAction{
		Type:   schemas.ActionTypeText,
		Target: "Search",
		Value:  "guest pay",
	})
	require.NoError(t, err)
	require.NotEmpty(t, page.settles)
	assert.Equal(t, searchResultsWait, page.settles[len(page.settles)-1],
		"the last settle before returning must be the fixed results delay")
}

func TestRun_NavigateAndScroll(t *testing.T) {
	x := testExecutor(t)
	page := newFakePage()

	detail, err := x.Run(context.Background(), page, schemas.AgentAction{
		Type:   schemas.ActionNavigate,
		Target: "https://acme.example/guest-pay",
	})
	require.NoError(t, err)
	assert.Contains(t, detail, "https://acme.example/guest-pay")
	assert.Equal(t, []string{"https://acme.example/guest-pay"}, page.navigations)

	detail, err = x.Run(context.Background(), page, schemas.AgentAction{Type: schemas.ActionScroll})
	require.NoError(t, err)
	assert.Contains(t, detail, "down")
}

func TestRun_UnknownActionType(t *testing.T) {
	x := testExecutor(t)
	_, err := x.Run(context.Background(), newFakePage(), schemas.AgentAction{Type: "levitate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action type")
}
