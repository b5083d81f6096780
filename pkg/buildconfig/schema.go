package buildconfig

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// configurationSchema constrains the shape a Configuration's fields may take
// before it is admitted into the graph as a configured target's identity
// half. It is the option-schema validator, never the package-definition
// language (that role belongs to the starlark-based loader).
const configurationSchema = `
#Configuration: {
	platform: string & =~"^[a-z0-9_]+(/[a-z0-9_]+)*$"
	compilation_mode: "fastbuild" | "opt" | "dbg"
	flags?: {[string]: string}
}
`

// schemaValidator validates encoded Configuration values against
// configurationSchema.
type schemaValidator struct {
	ctx    *cue.Context
	schema cue.Value
}

func newSchemaValidator() (*schemaValidator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(configurationSchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling configuration schema: %w", err)
	}
	return &schemaValidator{ctx: ctx, schema: schema.LookupPath(cue.ParsePath("#Configuration"))}, nil
}

func (sv *schemaValidator) validate(c Configuration) error {
	dataVal := sv.ctx.Encode(configurationDoc{
		Platform:        c.Platform,
		CompilationMode: c.CompilationMode,
		Flags:           c.Flags,
	})
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}

	unified := sv.schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("configuration schema validation: %w", err)
	}
	return nil
}

// configurationDoc mirrors Configuration's exported fields with the JSON
// tags the CUE schema's field names expect.
type configurationDoc struct {
	Platform        string            `json:"platform"`
	CompilationMode string            `json:"compilation_mode"`
	Flags           map[string]string `json:"flags,omitempty"`
}

var defaultValidator = func() *schemaValidator {
	sv, err := newSchemaValidator()
	if err != nil {
		panic(err)
	}
	return sv
}()
