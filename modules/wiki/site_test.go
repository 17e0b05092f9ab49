package wiki

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/ir"
)

func TestArticleURL(t *testing.T) {
	tests := []struct {
		site  Site
		title string
		want  string
	}{
		{Site{URL: "https://wiki.nixos.org/"}, "Nix flakes", "https://wiki.nixos.org/wiki/Nix_flakes"},
		{Site{URL: "https://wiki.archlinux.org/", ArticlePath: "/title/$1"}, "Sway", "https://wiki.archlinux.org/title/Sway"},
		{Site{URL: "https://atl.wiki", ArticlePath: "/$1"}, "Getting started", "https://atl.wiki/Getting_started"},
		{Site{URL: "https://example.org"}, "C/C++", "https://example.org/wiki/C%2FC++"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.site.ArticleURL(tt.title))
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	u, err := normalizeURL("wiki.gentoo.org")
	require.NoError(t, err)
	assert.Equal(t, "https://wiki.gentoo.org", u)

	u, err = normalizeURL(" http://localhost:8080/ ")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/", u)

	_, err = normalizeURL("https://")
	assert.Error(t, err)
}

func TestSitesFromSettings(t *testing.T) {
	sites, err := sitesFromSettings(ir.IRObject{
		"defaults": ir.IRArray{
			ir.IRObject{"name": ir.IRString("NixOS"), "url": ir.IRString("wiki.nixos.org")},
			ir.IRObject{"name": ir.IRString("archlinux"), "url": ir.IRString("https://wiki.archlinux.org/"), "article_path": ir.IRString("/title/$1")},
		},
	})
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, Site{Name: "nixos", URL: "https://wiki.nixos.org"}, sites[0])
	assert.Equal(t, "/title/$1", sites[1].ArticlePath)

	none, err := sitesFromSettings(ir.IRObject{})
	require.NoError(t, err)
	assert.Empty(t, none)

	bad := []ir.IRObject{
		{"defaults": ir.IRString("nixos")},
		{"defaults": ir.IRArray{ir.IRString("nixos")}},
		{"defaults": ir.IRArray{ir.IRObject{"url": ir.IRString("x.org")}}},
		{"defaults": ir.IRArray{
			ir.IRObject{"name": ir.IRString("a"), "url": ir.IRString("a.org")},
			ir.IRObject{"name": ir.IRString("A"), "url": ir.IRString("b.org")},
		}},
	}
	for _, settings := range bad {
		_, err := sitesFromSettings(settings)
		assert.Error(t, err)
	}
}
