// Package tlcal calibrates an external hydrologic model (StateTL) by
// synthesizing a placeholder template from a parameter table, rendering one
// model input per parameter sample, running the model in its own working
// directory and scoring the output with RMSE per gauge.
package tlcal

import "math"

const (
	AllReaches       = -1  // parameter table reach meaning "every reach of the district"
	Observed         = 1   // discriminator of gauge rows in model output
	Simulated        = 2   // discriminator of simulated rows in model output
	DefaultDelimiter = '~' // placeholder delimiter written to the template header
)

// FailedRMSE marks a run whose output could not be scored. It compares worse
// than any real RMSE and cannot be produced from a finite series.
var FailedRMSE = math.Inf(1)

// IsFailed reports whether v is the failure marker.
func IsFailed(v float64) bool { return math.IsInf(v, 1) }
