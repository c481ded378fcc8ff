package domain

import "time"

// KillSwitchTarget определяет область действия рубильника
type KillSwitchTarget string

const (
	TargetAll      KillSwitchTarget = "all"      // Все агенты без исключения
	TargetCategory KillSwitchTarget = "category" // Агенты с ролью из target_ids
	TargetAgent    KillSwitchTarget = "agent"    // Явный список агентов
)

// KillSwitch — именованный аварийный стоп-кран.
// Создается администратором заранее, активация — отдельная операция.
type KillSwitch struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	TargetType KillSwitchTarget `json:"target_type"`
	TargetIDs  []string         `json:"target_ids"` // ID агентов или имена категорий; игнорируется при target_type=all
	IsActive   bool             `json:"is_active"`

	ActivatedBy *string    `json:"activated_by,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	Reason      *string    `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Matches проверяет, попадает ли агент под область действия рубильника.
// Единственная точка истины для scope matching: ей пользуются и Policy Engine,
// и сервис активации — расхождение этих двух проверок было бы дырой в безопасности.
func (ks *KillSwitch) Matches(agentID, role string) bool {
	switch ks.TargetType {
	case TargetAll:
		return true
	case TargetAgent:
		return containsString(ks.TargetIDs, agentID)
	case TargetCategory:
		return containsString(ks.TargetIDs, role)
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
