package logs

import (
	"github.com/Trinoooo/quail_ev/consts"
	"go.uber.org/zap"
)

// With derives a component-scoped logger carrying a common field,
// so every package logs under its own component name.
func With(component string) *zap.Logger {
	return Logger.With(zap.String(consts.Component, component))
}
