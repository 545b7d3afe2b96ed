package preflag

import "errors"

// ErrFitConvergence is returned when the phase ramp fit for one cell did not
// converge. Callers recover by blanking the whole cell; the error never needs
// to travel further than the orchestrator.
var ErrFitConvergence = errors.New("phase ramp fit did not converge")
