package db

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
)

var ErrNoBuilds = errors.New("no recorded builds")

// Record stores b together with its artifacts.
func Record(conn *gorm.DB, b *Build) error {
	if err := conn.Create(b).Error; err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}
	return nil
}

// LatestBuild returns the newest build of buildType. An empty targetDir
// matches any target.
func LatestBuild(conn *gorm.DB, buildType, targetDir string) (*Build, error) {
	q := conn.Preload("Artifacts").Where("build_type = ?", buildType)
	if targetDir != "" {
		q = q.Where("target_dir = ?", targetDir)
	}
	var b Build
	if err := q.Order("id desc").First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w for %s", ErrNoBuilds, buildType)
		}
		return nil, err
	}
	return &b, nil
}

// PreviousBuild returns the build of the same type and target recorded
// before b, or nil when b is the first.
func PreviousBuild(conn *gorm.DB, b *Build) (*Build, error) {
	var prev Build
	err := conn.Preload("Artifacts").
		Where("build_type = ? AND target_dir = ? AND id < ?", b.BuildType, b.TargetDir, b.ID).
		Order("id desc").First(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prev, nil
}

// ListBuilds returns up to limit builds, newest first. A buildType of ""
// lists every type.
func ListBuilds(conn *gorm.DB, buildType string, limit int) ([]Build, error) {
	q := conn.Preload("Artifacts").Order("id desc")
	if buildType != "" {
		q = q.Where("build_type = ?", buildType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var builds []Build
	if err := q.Find(&builds).Error; err != nil {
		return nil, err
	}
	return builds, nil
}

type Change struct {
	Old, New BuildArtifact
}

type BuildDiff struct {
	Added   []BuildArtifact
	Removed []BuildArtifact
	Changed []Change
}

func (d BuildDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares the artifacts of two builds by name. prev may be nil.
func Diff(prev, cur *Build) BuildDiff {
	var d BuildDiff
	old := map[string]BuildArtifact{}
	if prev != nil {
		for _, a := range prev.Artifacts {
			old[a.Name] = a
		}
	}
	seen := map[string]bool{}
	if cur != nil {
		for _, a := range cur.Artifacts {
			seen[a.Name] = true
			o, ok := old[a.Name]
			switch {
			case !ok:
				d.Added = append(d.Added, a)
			case o.VersionID != a.VersionID || o.FileName != a.FileName:
				d.Changed = append(d.Changed, Change{Old: o, New: a})
			}
		}
	}
	for name, a := range old {
		if !seen[name] {
			d.Removed = append(d.Removed, a)
		}
	}

	byName := func(a, b BuildArtifact) int { return cmp.Compare(a.Name, b.Name) }
	slices.SortFunc(d.Added, byName)
	slices.SortFunc(d.Removed, byName)
	slices.SortFunc(d.Changed, func(a, b Change) int { return cmp.Compare(a.New.Name, b.New.Name) })
	return d
}
