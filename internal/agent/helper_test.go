package agent

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/veloxpay/guestpay/api/schemas"
)

// fakePage is a scriptable PageSession. Each hook defaults to a benign
// no-op so tests only wire the behavior they care about.
type fakePage struct {
	id           string
	navigateFn   func(url string) error
	currentURLFn func() (string, error)
	evaluateFn   func(script string, res interface{}) error
	clickFn      func(selector string) error
	typeFn       func(selector, text string) error
	pressEnterFn func(selector string) error
	screenshotFn func() ([]byte, error)

	navigations []string
	clicks      []string
	typed       map[string]string
	settles     []time.Duration
	closed      bool
}

func newFakePage() *fakePage {
	return &fakePage{id: "test-session", typed: make(map[string]string)}
}

func (p *fakePage) ID() string { return p.id }

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigations = append(p.navigations, url)
	if p.navigateFn != nil {
		return p.navigateFn(url)
	}
	return nil
}

func (p *fakePage) CurrentURL(_ context.Context) (string, error) {
	if p.currentURLFn != nil {
		return p.currentURLFn()
	}
	return "https://example.com/", nil
}

func (p *fakePage) Title(_ context.Context) (string, error) { return "Example", nil }

func (p *fakePage) Evaluate(_ context.Context, script string, res interface{}) error {
	if p.evaluateFn != nil {
		return p.evaluateFn(script, res)
	}
	if b, ok := res.(*bool); ok {
		*b = false
	}
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.clicks = append(p.clicks, selector)
	if p.clickFn != nil {
		return p.clickFn(selector)
	}
	return nil
}

func (p *fakePage) Type(_ context.Context, selector, text string) error {
	p.typed[selector] = text
	if p.typeFn != nil {
		return p.typeFn(selector, text)
	}
	return nil
}

func (p *fakePage) PressEnter(_ context.Context, selector string) error {
	if p.pressEnterFn != nil {
		return p.pressEnterFn(selector)
	}
	return nil
}

func (p *fakePage) Scroll(_ context.Context, _ string) error { return nil }

func (p *fakePage) Screenshot(_ context.Context) ([]byte, error) {
	if p.screenshotFn != nil {
		return p.screenshotFn()
	}
	return []byte("png-bytes"), nil
}

func (p *fakePage) Settle(_ context.Context, quiet time.Duration) error {
	p.settles = append(p.settles, quiet)
	return nil
}

func (p *fakePage) Close(_ context.Context) error {
	p.closed = true
	return nil
}

// fakeFactory hands out a preconstructed page.
type fakeFactory struct {
	page *fakePage
	err  error
}

func (f *fakeFactory) NewSession(_ context.Context) (PageSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

// mockDecider is a testify mock for the Decider interface.
type mockDecider struct {
	mock.Mock
}

func (m *mockDecider) Decide(ctx context.Context, in DecisionInput) (Outcome, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(Outcome), args.Error(1)
}

// mockRunner is a testify mock for the ActionRunner interface.
type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, page PageSession, action schemas.AgentAction) (string, error) {
	args := m.Called(ctx, page, action)
	return args.String(0), args.Error(1)
}

// fakeSnapshotter returns queued snapshots, repeating the last one.
type fakeSnapshotter struct {
	snaps []schemas.PageSnapshot
	err   error
	calls int
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, _ PageSession) (schemas.PageSnapshot, error) {
	f.calls++
	if f.err != nil {
		return schemas.PageSnapshot{}, f.err
	}
	if len(f.snaps) == 0 {
		return schemas.PageSnapshot{URL: "https://example.com/"}, nil
	}
	idx := f.calls - 1
	if idx >= len(f.snaps) {
		idx = len(f.snaps) - 1
	}
	return f.snaps[idx], nil
}

// fakeRecorder remembers the labels it was asked to capture.
type fakeRecorder struct {
	labels []string
	err    error
}

func (f *fakeRecorder) Capture(_ context.Context, page PageSession, label string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.labels = append(f.labels, label)
	return "screenshots/" + page.ID() + "-" + label + ".png", nil
}

// mockLLM is a testify mock for the LLM client used by the decision service.
type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) Close() error {
	args := m.Called()
	return args.Error(0)
}
