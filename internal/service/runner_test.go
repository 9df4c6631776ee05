package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veloxpay/guestpay/api/schemas"
	"github.com/veloxpay/guestpay/internal/store"
)

// fakeAgent runs a scripted Execute while tracking how many runs were in
// flight at once.
type fakeAgent struct {
	executeFn   func(ctx context.Context, startURL string, goal schemas.Goal) (*schemas.AgentResult, error)
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeAgent) Execute(ctx context.Context, startURL string, goal schemas.Goal) (*schemas.AgentResult, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.executeFn != nil {
		return f.executeFn(ctx, startURL, goal)
	}
	return &schemas.AgentResult{Success: true, FinalURL: startURL}, nil
}

// fakeRunStore records every saved run.
type fakeRunStore struct {
	mu      sync.Mutex
	saved   []store.RunRecord
	saveErr error
}

func (f *fakeRunStore) SaveRun(ctx context.Context, rec store.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return f.saveErr
}

func (f *fakeRunStore) records() []store.RunRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.RunRecord(nil), f.saved...)
}

func testRunRequests(n int) []RunRequest {
	reqs := make([]RunRequest, 0, n)
	for i := 0; i < n; i++ {
		reqs = append(reqs, RunRequest{
			StartURL: "https://provider.example/pay",
			Goal: schemas.Goal{
				Type: schemas.GoalFindGuestPayURL,
				Context: schemas.GoalContext{
					Provider:      "Acme Water",
					AccountNumber: "123456789",
					ZipCode:       "90210",
				},
			},
		})
	}
	return reqs
}

func TestRunAll_OutcomesInRequestOrder(t *testing.T) {
	ag := &fakeAgent{
		executeFn: func(ctx context.Context, startURL string, goal schemas.Goal) (*schemas.AgentResult, error) {
			return &schemas.AgentResult{Success: true, FinalURL: startURL}, nil
		},
	}
	runner := NewRunner(ag, nil, zap.NewNop(), 3)

	reqs := testRunRequests(3)
	reqs[0].ID = "run-a"
	reqs[0].StartURL = "https://a.example"
	reqs[1].ID = "run-b"
	reqs[1].StartURL = "https://b.example"
	reqs[2].ID = "run-c"
	reqs[2].StartURL = "https://c.example"

	outcomes := runner.RunAll(context.Background(), reqs)

	require.Len(t, outcomes, 3)
	assert.Equal(t, "run-a", outcomes[0].ID)
	assert.Equal(t, "https://a.example", outcomes[0].Result.FinalURL)
	assert.Equal(t, "run-b", outcomes[1].ID)
	assert.Equal(t, "https://b.example", outcomes[1].Result.FinalURL)
	assert.Equal(t, "run-c", outcomes[2].ID)
}

func TestRunAll_AssignsIDsWhenMissing(t *testing.T) {
	runner := NewRunner(&fakeAgent{}, nil, zap.NewNop(), 1)

	outcomes := runner.RunAll(context.Background(), testRunRequests(2))

	require.Len(t, outcomes, 2)
	assert.NotEmpty(t, outcomes[0].ID)
	assert.NotEmpty(t, outcomes[1].ID)
	assert.NotEqual(t, outcomes[0].ID, outcomes[1].ID)
}

func TestRunAll_RespectsConcurrencyBound(t *testing.T) {
	ag := &fakeAgent{
		executeFn: func(ctx context.Context, startURL string, goal schemas.Goal) (*schemas.AgentResult, error) {
			time.Sleep(20 * time.Millisecond)
			return &schemas.AgentResult{Success: true}, nil
		},
	}
	runner := NewRunner(ag, nil, zap.NewNop(), 2)

	runner.RunAll(context.Background(), testRunRequests(6))

	assert.LessOrEqual(t, ag.maxInFlight.Load(), int32(2))
}

func TestRunAll_FailedRunDoesNotCancelSiblings(t *testing.T) {
	runErr := errors.New("session could not be created")
	var calls atomic.Int32
	ag := &fakeAgent{
		executeFn: func(ctx context.Context, startURL string, goal schemas.Goal) (*schemas.AgentResult, error) {
			if calls.Add(1) == 1 {
				return nil, runErr
			}
			require.NoError(t, ctx.Err(), "sibling run context must stay live")
			return &schemas.AgentResult{Success: true}, nil
		},
	}
	runner := NewRunner(ag, nil, zap.NewNop(), 1)

	outcomes := runner.RunAll(context.Background(), testRunRequests(3))

	require.Len(t, outcomes, 3)
	assert.ErrorIs(t, outcomes[0].Err, runErr)
	assert.Nil(t, outcomes[0].Result)
	assert.True(t, outcomes[1].Result.Success)
	assert.True(t, outcomes[2].Result.Success)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRunAll_PersistsWithMaskedAccount(t *testing.T) {
	st := &fakeRunStore{}
	runner := NewRunner(&fakeAgent{}, st, zap.NewNop(), 1)

	reqs := testRunRequests(1)
	reqs[0].ID = "run-persist"
	outcomes := runner.RunAll(context.Background(), reqs)

	require.Len(t, outcomes, 1)
	recs := st.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "run-persist", recs[0].ID)
	assert.Equal(t, "Acme Water", recs[0].Provider)
	assert.Equal(t, "****6789", recs[0].AccountLast4)
	assert.NotContains(t, recs[0].AccountLast4, "12345")
	assert.Equal(t, schemas.GoalFindGuestPayURL, recs[0].Goal)
	assert.True(t, recs[0].Result.Success)
	assert.False(t, recs[0].CreatedAt.IsZero())
}

func TestRunAll_SaveFailureDoesNotFailTheRun(t *testing.T) {
	st := &fakeRunStore{saveErr: errors.New("connection refused")}
	runner := NewRunner(&fakeAgent{}, st, zap.NewNop(), 1)

	outcomes := runner.RunAll(context.Background(), testRunRequests(1))

	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Result.Success)
}

func TestRunAll_NoStoreSkipsPersistence(t *testing.T) {
	runner := NewRunner(&fakeAgent{}, nil, zap.NewNop(), 1)

	outcomes := runner.RunAll(context.Background(), testRunRequests(1))

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Result.Success)
}
