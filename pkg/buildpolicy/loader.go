package buildpolicy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildtool/buildtool/pkg/telemetry"
)

// loader reads operator-supplied .rego files from the filesystem.
type loader struct {
	logger *telemetry.Logger
}

func newLoader(logger *telemetry.Logger) *loader {
	return &loader{logger: logger.NewComponentLogger("buildpolicy-loader")}
}

func (l *loader) loadFromPaths(paths []string) ([]Policy, error) {
	var all []Policy
	for _, path := range paths {
		ps, err := l.loadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		all = append(all, ps...)
	}
	return all, nil
}

func (l *loader) loadFromPath(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return l.loadFromDirectory(path)
	}
	p, err := l.loadFromFile(path)
	if err != nil {
		return nil, err
	}
	return []Policy{p}, nil
}

func (l *loader) loadFromDirectory(dir string) ([]Policy, error) {
	var policies []Policy
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		p, err := l.loadFromFile(path)
		if err != nil {
			return err
		}
		policies = append(policies, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return policies, nil
}

func (l *loader) loadFromFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	l.logger.Debugf("loaded policy %s from %s", name, path)
	return Policy{
		Name:     name,
		Rego:     string(data),
		Severity: SeverityWarning,
		Enabled:  true,
	}, nil
}
