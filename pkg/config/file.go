package config

import (
	"encoding/json"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"solflag/pkg/utils/ptr"
)

var defaultFileConfig = &RawFileConfig{
	FlagCut:          ptr.To(3.0),
	RefAnt:           ptr.To(-1), // negative selects the reference antenna automatically
	RobustPhaseStats: ptr.To(false),
	SmoothWindow:     ptr.To(16),
	SmoothOrder:      ptr.To(4),
	PlotDir:          ptr.To(""),
}

var _ Config = &File{}

// File is a Config backed by a JSON file. A missing file yields defaults.
type File struct {
	c        *RawFileConfig
	filepath string
}

// NewFile reads a config from the given path.
func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
	}
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewDefault returns a config carrying only the defaults, not backed by any
// file.
func NewDefault() *File {
	return &File{c: &RawFileConfig{}}
}

// RawFileConfig is the JSON shape of the config file. Missing fields fall
// back to defaults.
type RawFileConfig struct {
	FlagCut          *float64 `json:"flagCut,omitempty"`
	RefAnt           *int     `json:"refAnt,omitempty"`
	RobustPhaseStats *bool    `json:"robustPhaseStats,omitempty"`
	SmoothWindow     *int     `json:"smoothWindow,omitempty"`
	SmoothOrder      *int     `json:"smoothOrder,omitempty"`
	PlotDir          *string  `json:"plotDir,omitempty"`
}

func (f *File) FlagCut() float64 {
	if f.c != nil && f.c.FlagCut != nil {
		return *f.c.FlagCut
	}
	return *defaultFileConfig.FlagCut
}

func (f *File) RefAnt() int {
	if f.c != nil && f.c.RefAnt != nil {
		return *f.c.RefAnt
	}
	return *defaultFileConfig.RefAnt
}

func (f *File) RobustPhaseStats() bool {
	if f.c != nil && f.c.RobustPhaseStats != nil {
		return *f.c.RobustPhaseStats
	}
	return *defaultFileConfig.RobustPhaseStats
}

func (f *File) SmoothWindow() int {
	if f.c != nil && f.c.SmoothWindow != nil {
		return *f.c.SmoothWindow
	}
	return *defaultFileConfig.SmoothWindow
}

func (f *File) SmoothOrder() int {
	if f.c != nil && f.c.SmoothOrder != nil {
		return *f.c.SmoothOrder
	}
	return *defaultFileConfig.SmoothOrder
}

func (f *File) PlotDir() string {
	if f.c != nil && f.c.PlotDir != nil {
		return *f.c.PlotDir
	}
	return *defaultFileConfig.PlotDir
}

func (f *File) SetFlagCut(v float64)       { f.ensure(); f.c.FlagCut = ptr.To(v) }
func (f *File) SetRefAnt(v int)            { f.ensure(); f.c.RefAnt = ptr.To(v) }
func (f *File) SetRobustPhaseStats(v bool) { f.ensure(); f.c.RobustPhaseStats = ptr.To(v) }
func (f *File) SetSmoothWindow(v int)      { f.ensure(); f.c.SmoothWindow = ptr.To(v) }
func (f *File) SetSmoothOrder(v int)       { f.ensure(); f.c.SmoothOrder = ptr.To(v) }
func (f *File) SetPlotDir(v string)        { f.ensure(); f.c.PlotDir = ptr.To(v) }

func (f *File) ensure() {
	if f.c == nil {
		f.c = &RawFileConfig{}
	}
}

// Load reads the config file. A missing file is not an error; the config
// falls back to defaults.
func (f *File) Load() error {
	if f.filepath == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	file, err := os.Open(f.filepath)
	if os.IsNotExist(err) {
		logrus.Infof("config file %s does not exist, using defaults", f.filepath)
		f.c = &RawFileConfig{}
		return nil
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open config file %s", f.filepath)
	}
	defer file.Close()

	b, err := io.ReadAll(file)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read config file %s", f.filepath)
	}

	c := &RawFileConfig{}
	if err := json.Unmarshal(b, c); err != nil {
		return pkgerrors.Wrapf(err, "failed to parse config file %s", f.filepath)
	}
	f.c = c

	return nil
}

// Save writes the config file.
func (f *File) Save() error {
	if f.filepath == "" {
		return pkgerrors.New("config has no backing file")
	}
	f.ensure()

	b, err := json.MarshalIndent(f.c, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(f.filepath, b, 0o644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write config file %s", f.filepath)
	}
	return nil
}
