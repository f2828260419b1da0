package db

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Build is one materialized build of a pack.
type Build struct {
	gorm.Model
	BuildType  string `gorm:"index"` // Build type name
	TargetDir  string `gorm:"index"` // Directory the build was written to
	Manifest   string // Manifest path
	McVersion  string
	Loader     string
	StartedAt  time.Time
	FinishedAt time.Time
	Artifacts  []BuildArtifact
}

// BuildArtifact is a file installed by a build.
type BuildArtifact struct {
	gorm.Model
	BuildID       uint   `gorm:"index"`
	Name          string // Project name (slug) or local entry name
	ProjectID     string
	VersionID     string
	VersionNumber string
	FileName      string
	InstallPath   string
	Source        string
	Explicit      bool
	Dependents    string // Comma separated names of mods requiring this one
}

func (a BuildArtifact) DependentNames() []string {
	if a.Dependents == "" {
		return nil
	}
	return strings.Split(a.Dependents, ",")
}
