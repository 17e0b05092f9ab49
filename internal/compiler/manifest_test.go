package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/ir"
)

func TestCompileManifestBasic(t *testing.T) {
	m, err := CompileManifest("wiki.cue", []byte(`
		module: {
			entry:       "wiki"
			description: "MediaWiki lookups"
			settings: {
				defaults: [{name: "nixos", url: "https://wiki.nixos.org/"}]
				limit: 25
			}
		}
	`))
	require.NoError(t, err)

	assert.Equal(t, "wiki", m.Entry)
	assert.Equal(t, "MediaWiki lookups", m.Description)
	assert.True(t, m.Enabled, "enabled defaults to true")
	assert.Empty(t, m.ID)
	assert.Equal(t, ir.IRInt(25), m.Settings["limit"])
	assert.Equal(t, ir.IRArray{ir.IRObject{
		"name": ir.IRString("nixos"),
		"url":  ir.IRString("https://wiki.nixos.org/"),
	}}, m.Settings["defaults"])
	assert.Len(t, m.Hash, 64)
}

func TestCompileManifestDisabledWithID(t *testing.T) {
	m, err := CompileManifest("x.cue", []byte(`module: {id: "tools.ping", entry: "ping", enabled: false}`))
	require.NoError(t, err)
	assert.Equal(t, "tools.ping", m.ID)
	assert.False(t, m.Enabled)
	assert.Equal(t, ir.IRObject{}, m.Settings)
}

func TestCompileManifestNoModule(t *testing.T) {
	_, err := CompileManifest("shared.cue", []byte(`#Shared: {x: int}`))
	assert.ErrorIs(t, err, ErrNoModule)
}

func TestCompileManifestMissingEntry(t *testing.T) {
	_, err := CompileManifest("broken.cue", []byte(`module: {description: "no entry"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntry)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "module.entry", ce.Field)
}

func TestCompileManifestRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `module: {entry: "x"`},
		{"empty entry", `module: {entry: ""}`},
		{"unknown field", `module: {entry: "x", version: 2}`},
		{"bad id", `module: {entry: "x", id: "Has Spaces"}`},
		{"float setting", `module: {entry: "x", settings: ratio: 0.5}`},
		{"not a struct", `module: "ping"`},
		{"incomplete setting", `module: {entry: "x", settings: name: string}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileManifest(tt.name+".cue", []byte(tt.src))
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrNoModule)
		})
	}
}

func TestCompileManifestHashTracksContent(t *testing.T) {
	a, err := CompileManifest("a.cue", []byte(`module: {entry: "ping"}`))
	require.NoError(t, err)
	b, err := CompileManifest("b.cue", []byte("// comment\nmodule: {\n\tentry: \"ping\"\n}\n"))
	require.NoError(t, err)
	c, err := CompileManifest("c.cue", []byte(`module: {entry: "ping", enabled: false}`))
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.Hash, "formatting does not change the hash")
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestToIR(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`{s: "x", n: 3, b: true, z: null, l: [1, "two"], o: {k: "v"}}`)
	require.NoError(t, v.Err())

	got, err := ToIR(v)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{
		"s": ir.IRString("x"),
		"n": ir.IRInt(3),
		"b": ir.IRBool(true),
		"z": ir.IRNull{},
		"l": ir.IRArray{ir.IRInt(1), ir.IRString("two")},
		"o": ir.IRObject{"k": ir.IRString("v")},
	}, got)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("utility.wiki"))
	assert.True(t, ValidID("ping"))
	assert.False(t, ValidID("Utility"))
	assert.False(t, ValidID(".hidden"))
	assert.False(t, ValidID(""))
}
