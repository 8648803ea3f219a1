package domain

import (
	"path/filepath"

	"github.com/varoOP/seasondb/pkg/season"
)

const DatabaseFile = "seasondb.db"

// Paths holds all the file paths used by a run
type Paths struct {
	OutputDir     string
	DataDir       string
	CacheFile     string
	DatabaseDir   string
	OverridesFile string
}

// NewPaths creates a new Paths instance from the configuration
func NewPaths(cfg *Config) *Paths {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(cfg.OutputDir, "data")
	}
	return &Paths{
		OutputDir:     cfg.OutputDir,
		DataDir:       dataDir,
		CacheFile:     cfg.CacheFile,
		DatabaseDir:   cfg.DatabaseDir,
		OverridesFile: cfg.OverridesFile,
	}
}

// PartitionPath is where a period's dataset lives.
func (p *Paths) PartitionPath(period season.Period) string {
	return filepath.Join(p.DataDir, period.FileName())
}
