package module

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cogd/internal/compiler"
)

const (
	// ManifestExt is the extension of module manifest files.
	ManifestExt = ".cue"
	// indexManifest names a manifest that takes its directory's ID.
	indexManifest = "module" + ManifestExt
)

// Discover walks root recursively and yields a Record for every manifest
// that declares a module. Directory entries are visited in lexical order at
// every level, so the sequence is deterministic. Nothing is read until the
// sequence is ranged over.
//
// Files that are not manifests, and manifests without a module struct, are
// skipped. A manifest that fails to compile or whose entry point the
// catalog does not know yields a Record already in the failed state. Walk
// errors are yielded with a nil Record.
func Discover(root string, catalog *Catalog) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(nil, fmt.Errorf("discover %s: %w", path, err)) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ManifestExt {
				return nil
			}

			rec, ok := inspect(root, path, catalog)
			if !ok {
				return nil
			}
			if !yield(rec, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// ModuleID derives a module ID from a manifest path: the path relative to
// root without extension, separators replaced by dots, NFC-normalized and
// lower-cased. A manifest named module.cue takes its directory's ID.
//
//	utility/wiki.cue        -> utility.wiki
//	utility/wiki/module.cue -> utility.wiki
func ModuleID(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("module id for %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("module id for %s: outside root %s", path, root)
	}
	if dir, base := filepath.Split(rel); base == indexManifest && dir != "" {
		rel = strings.TrimSuffix(dir, "/")
	} else {
		rel = strings.TrimSuffix(rel, ManifestExt)
	}
	id := strings.ReplaceAll(rel, "/", ".")
	return strings.ToLower(norm.NFC.String(id)), nil
}

// errGone means the manifest file no longer exists or no longer declares a
// module.
var errGone = errors.New("manifest gone")

// readManifest reads and compiles the manifest at path and checks its entry
// point against catalog. A manifest that compiles but names an unknown
// entry is returned together with the error.
func readManifest(path string, catalog *Catalog) (*compiler.Manifest, error) {
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errGone
	}
	if err != nil {
		return nil, &Error{Code: CodeInvalidManifest, Op: "read_manifest", Err: err}
	}

	m, err := compiler.CompileManifest(path, src)
	switch {
	case errors.Is(err, compiler.ErrNoModule):
		return nil, errGone
	case errors.Is(err, compiler.ErrNoEntry):
		return nil, &Error{Code: CodeMissingEntryPoint, Op: "read_manifest", Err: err}
	case err != nil:
		return nil, &Error{Code: CodeInvalidManifest, Op: "read_manifest", Err: err}
	}
	if _, ok := catalog.Lookup(m.Entry); !ok {
		return m, newError(CodeMissingEntryPoint, "read_manifest", "", "entry %q is not in the catalog", m.Entry)
	}
	return m, nil
}

// inspect compiles one manifest into a Record. ok is false when the file
// declares no module.
func inspect(root, path string, catalog *Catalog) (*Record, bool) {
	id, idErr := ModuleID(root, path)
	m, err := readManifest(path, catalog)
	if errors.Is(err, errGone) {
		return nil, false
	}
	if m != nil && m.ID != "" {
		id = m.ID
	}
	if id == "" {
		id = filepath.Base(path)
	}

	rec := newRecord(id, path)
	rec.manifest = m
	if err == nil && (idErr != nil || !compiler.ValidID(id)) {
		err = newError(CodeInvalidManifest, "read_manifest", id, "%q is not a valid module id", id)
	}
	if err != nil {
		rec.fail(labelled(err, id))
	}
	return rec, true
}

// labelled sets the module ID on a lifecycle error.
func labelled(err error, id string) error {
	var me *Error
	if errors.As(err, &me) && me.ModuleID == "" {
		me.ModuleID = id
	}
	return err
}

// fail marks a freshly discovered record as failed without a transition.
func (r *Record) fail(err error) {
	r.state = StateFailed
	r.lastErr = err
	r.manifestErr = err
}
