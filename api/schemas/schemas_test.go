package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoalTypeValid(t *testing.T) {
	valid := []GoalType{
		GoalFindGuestPayURL,
		GoalFillBillInfo,
		GoalSelectPaymentMethod,
		GoalFillBankAccount,
		GoalMakePayment,
	}
	for _, g := range valid {
		assert.True(t, g.Valid(), "expected %q to be valid", g)
	}

	assert.False(t, GoalType("").Valid())
	assert.False(t, GoalType("teleport").Valid())
	assert.False(t, GoalType("FIND_GUEST_PAY_URL").Valid(), "goal types are case sensitive")
}

// The model emits decisions with the action nested under an "action" key whose
// type discriminator is also called "action". The struct tags must preserve
// that shape exactly or every model response fails to parse.
func TestAgentDecisionWireShape(t *testing.T) {
	raw := `{
		"observation": "A guest pay link is visible in the header.",
		"reasoning": "Clicking it should reach the lookup form directly.",
		"action": {"action": "click", "target": "Pay as Guest"},
		"goal_achieved": false,
		"confidence": 0.9
	}`

	var dec AgentDecision
	require.NoError(t, json.Unmarshal([]byte(raw), &dec))

	assert.Equal(t, ActionClick, dec.Action.Type)
	assert.Equal(t, "Pay as Guest", dec.Action.Target)
	assert.False(t, dec.GoalAchieved)
	assert.InDelta(t, 0.9, dec.Confidence, 1e-9)

	out, err := json.Marshal(dec.Action)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"click","target":"Pay as Guest"}`, string(out))
}
