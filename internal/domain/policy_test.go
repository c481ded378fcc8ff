package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleConditionsAppliesTo(t *testing.T) {
	c := RuleConditions{Actions: []string{"delete"}, Resources: []string{"payments_api"}}

	assert.True(t, c.AppliesTo("delete", "other"))
	assert.True(t, c.AppliesTo("read", "payments_api"))
	assert.False(t, c.AppliesTo("read", "other"))
	assert.False(t, RuleConditions{}.AppliesTo("delete", "payments_api"))
}

func TestPolicyDecisionDenyAndDefer(t *testing.T) {
	d := PolicyDecision{Allowed: true}

	d.Defer("amount_threshold_policy")
	assert.True(t, d.Allowed)
	assert.True(t, d.RequiresApproval)

	d.Deny("Kill switch active: Stop", "Stop")
	assert.False(t, d.Allowed)
	assert.Equal(t, "Kill switch active: Stop", d.Reason)
	assert.Equal(t, []string{"amount_threshold_policy", "Stop"}, d.AppliedPolicies)
}

func TestParseRuleConditionsTolerant(t *testing.T) {
	assert.Empty(t, ParseRuleConditions(nil).Actions)
	assert.Empty(t, ParseRuleConditions([]byte("{broken")).Actions)

	c := ParseRuleConditions([]byte(`{"actions":["export"]}`))
	assert.Equal(t, []string{"export"}, c.Actions)
}

func TestParseBoundaries(t *testing.T) {
	b := ParseBoundaries([]byte(`{"maxAmount":5000,"restrictedData":["salary_db"]}`))
	assert.NotNil(t, b.MaxAmount)
	assert.Equal(t, 5000.0, *b.MaxAmount)
	assert.True(t, b.IsRestricted("salary_db"))
	assert.False(t, b.IsRestricted("public_api"))

	empty := ParseBoundaries(nil)
	assert.Nil(t, empty.MaxAmount)
}
