// Package clock provides the time source injected into services so tests
// can pin "today" when evaluating validity windows and due dates.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewSystemClock() Clock { return systemClock{} }
