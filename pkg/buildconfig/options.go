// Package buildconfig holds the two option types that parameterize a build:
// BuildOptions, the process-wide flags parsed once per invocation, and
// Configuration, the smaller immutable record attached to each configured
// target.
package buildconfig

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// BuildOptions are the process-wide flags that affect core evaluation
// semantics. They are parsed once per invocation and never change mid-build.
type BuildOptions struct {
	KeepGoing bool `validate:"-"`

	Jobs int `validate:"gte=0"`

	RepositoryDisableDownload bool `validate:"-"`

	DiskCachePath string `validate:"-"`

	RemoteCacheURL string `validate:"omitempty,url"`

	ExperimentalSiblingRepositoryLayout bool `validate:"-"`
}

// DefaultBuildOptions returns the flag defaults used when nothing overrides
// them on the command line.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{Jobs: 0}
}

var validate = validator.New()

// Validate checks o against its struct tags, returning a single error
// describing every violated field.
func (o BuildOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("build options: %w", err)
	}
	return nil
}
