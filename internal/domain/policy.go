package domain

import (
	"encoding/json"
	"time"
)

// RuleConditions — условия срабатывания правила.
// Правило применяется, если совпало действие ИЛИ ресурс.
type RuleConditions struct {
	Actions   []string `json:"actions,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

// AppliesTo проверяет, затрагивает ли правило пару действие/ресурс
func (c RuleConditions) AppliesTo(action, resource string) bool {
	return containsString(c.Actions, action) || containsString(c.Resources, resource)
}

// RuleActions — эффект правила. Оба флага могут быть выставлены одновременно:
// deny имеет приоритет при чтении решения.
type RuleActions struct {
	RequireApproval bool `json:"require_approval,omitempty"`
	Deny            bool `json:"deny,omitempty"`
}

// PolicyRule — настраиваемое правило безопасности.
// Conditions/Actions хранятся в БД как JSONB, разбираются на границе репозитория.
type PolicyRule struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Conditions  RuleConditions `json:"conditions"`
	Actions     RuleActions    `json:"actions"`
	Enabled     bool           `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseRuleConditions разбирает JSONB-колонку conditions.
// Битый JSON трактуем как пустые условия: правило просто не сработает,
// ошибку репортит валидация при сохранении, а не Hot Path.
func ParseRuleConditions(raw []byte) RuleConditions {
	var c RuleConditions
	if len(raw) == 0 {
		return c
	}
	_ = json.Unmarshal(raw, &c)
	return c
}

func ParseRuleActions(raw []byte) RuleActions {
	var a RuleActions
	if len(raw) == 0 {
		return a
	}
	_ = json.Unmarshal(raw, &a)
	return a
}

// PolicyDecision — результат одной проверки. Не персистится как сущность,
// вычисляется на каждый запрос. allowed=false абсолютен: requiresApproval
// при этом сохраняет вычисленное значение, но вызывающий обязан сперва
// смотреть на allowed.
type PolicyDecision struct {
	Allowed          bool     `json:"allowed"`
	RequiresApproval bool     `json:"requiresApproval"`
	Reason           string   `json:"reason,omitempty"`
	AppliedPolicies  []string `json:"appliedPolicies"`
}

// Deny выставляет запрет. Запрет «липкий»: однажды выставленный allowed=false
// не может быть перезаписан обратно последующими правилами.
func (d *PolicyDecision) Deny(reason, policy string) {
	d.Allowed = false
	d.Reason = reason
	d.AppliedPolicies = append(d.AppliedPolicies, policy)
}

func (d *PolicyDecision) Defer(policy string) {
	d.RequiresApproval = true
	d.AppliedPolicies = append(d.AppliedPolicies, policy)
}
