package compiler

import (
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/cogd/internal/ir"
)

// Manifest is a compiled module manifest.
//
//	module: {
//		entry:       "wiki"
//		description: "MediaWiki lookups"
//		settings: defaults: [{name: "archlinux", url: "https://wiki.archlinux.org/"}]
//	}
type Manifest struct {
	// ID overrides the path-derived module ID when set.
	ID string
	// Entry names the catalog factory that builds the module.
	Entry       string
	Description string
	// Enabled is false when the manifest opts out of load-all.
	Enabled  bool
	Settings ir.IRObject
	// Hash identifies the manifest content for change detection.
	Hash string
}

const moduleSchema = `
#Module: {
	id?:          string & =~"^[a-z0-9][a-z0-9._-]*$"
	entry:        string & !=""
	description?: string
	enabled:      *true | bool
	settings:     {...}
}
`

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidID reports whether id is a well-formed module ID.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// CompileManifest compiles one manifest file. A file without a top-level
// module struct returns ErrNoModule; one whose module has no entry returns
// a *CompileError wrapping ErrNoEntry.
func CompileManifest(filename string, src []byte) (*Manifest, error) {
	ctx := cuecontext.New()

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	mod := v.LookupPath(cue.ParsePath("module"))
	if !mod.Exists() {
		return nil, ErrNoModule
	}
	if mod.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: "module", Message: "module must be a struct", Pos: mod.Pos()}
	}
	if !mod.LookupPath(cue.ParsePath("entry")).Exists() {
		return nil, &CompileError{Field: "module.entry", Message: "entry is required", Pos: mod.Pos(), Err: ErrNoEntry}
	}

	schema := ctx.CompileString(moduleSchema).LookupPath(cue.ParsePath("#Module"))
	unified := schema.Unify(mod)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	decoded, err := ToIR(unified)
	if err != nil {
		return nil, err
	}
	obj := decoded.(ir.IRObject)

	settings, _ := obj["settings"].(ir.IRObject)
	if settings == nil {
		settings = ir.IRObject{}
	}
	m := &Manifest{
		ID:          obj.String("id"),
		Entry:       obj.String("entry"),
		Description: obj.String("description"),
		Enabled:     obj.Bool("enabled"),
		Settings:    settings,
	}
	m.Hash, err = ir.ManifestHash(obj)
	if err != nil {
		return nil, err
	}
	return m, nil
}
