// Package config holds the defaults a flagging run starts from. Values come
// from an optional JSON file; CLI flags override them at the call site.
package config

// Config is the set of tunables a flagging run reads.
type Config interface {
	FlagCut() float64
	RefAnt() int
	RobustPhaseStats() bool
	SmoothWindow() int
	SmoothOrder() int
	PlotDir() string

	SetFlagCut(float64)
	SetRefAnt(int)
	SetRobustPhaseStats(bool)
	SetSmoothWindow(int)
	SetSmoothOrder(int)
	SetPlotDir(string)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
