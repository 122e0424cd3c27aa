package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies "now" for active windows and charge timestamps so tests
// can pin time exactly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func NewSystemClock() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
