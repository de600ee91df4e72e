// Пакет gate — отображение медиа, зависящее от результатов проверки.
//
// Жизненный цикл одного элемента: scanning → safe | unsafe.
// Решение принимается только после завершения обеих проверок
// (источник и миниатюра). До этого и при небезопасном результате
// показывается заглушка.
package gate

import "fmt"

// Phase — фаза проверки отображаемого элемента.
type Phase string

const (
	// PhaseScanning — проверки ещё выполняются (начальная фаза)
	PhaseScanning Phase = "scanning"
	// PhaseSafe — обе проверки вернули true
	PhaseSafe Phase = "safe"
	// PhaseUnsafe — хотя бы одна проверка вернула false или ошибку
	PhaseUnsafe Phase = "unsafe"
)

// validTransitions — матрица допустимых переходов.
// safe и unsafe — конечные фазы.
var validTransitions = map[Phase]map[Phase]bool{
	PhaseScanning: {PhaseSafe: true, PhaseUnsafe: true},
	PhaseSafe:     {},
	PhaseUnsafe:   {},
}

// TransitionError — ошибка недопустимого перехода фазы.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("переход %s → %s недопустим", e.From, e.To)
}

// CanTransition проверяет допустимость перехода.
func CanTransition(from, to Phase) bool {
	return validTransitions[from][to]
}

// State — состояние отображения элемента.
// Err заполнен, если проверка завершилась ошибкой (Safe при этом false).
type State struct {
	Scanning bool  `json:"scanning"`
	Safe     bool  `json:"safe"`
	Err      error `json:"-"`
}

// InitialState — {Scanning: true, Safe: false}.
func InitialState() State {
	return State{Scanning: true}
}

// Phase возвращает фазу, соответствующую состоянию.
func (s State) Phase() Phase {
	switch {
	case s.Scanning:
		return PhaseScanning
	case s.Safe:
		return PhaseSafe
	default:
		return PhaseUnsafe
	}
}
