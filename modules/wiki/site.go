package wiki

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/model"
)

// defaultArticlePath is MediaWiki's default when a site leaves it empty.
const defaultArticlePath = "/wiki/$1"

// Site is one MediaWiki installation.
type Site struct {
	Name        string
	URL         string
	ScriptPath  string
	ArticlePath string
}

func siteFromModel(w *model.Wiki) Site {
	return Site{Name: w.Name, URL: w.URL, ScriptPath: w.ScriptPath, ArticlePath: w.ArticlePath}
}

// ArticleURL links to the article called title.
//
//	Site{URL: "https://wiki.archlinux.org/", ArticlePath: "/title/$1"}.ArticleURL("Sway")
//	  -> https://wiki.archlinux.org/title/Sway
func (s Site) ArticleURL(title string) string {
	path := s.ArticlePath
	if path == "" {
		path = defaultArticlePath
	}
	slug := url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
	return strings.TrimRight(s.URL, "/") + "/" + strings.TrimLeft(strings.ReplaceAll(path, "$1", slug), "/")
}

// normalizeURL adds https:// when no scheme is given and requires a host.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: no host", raw)
	}
	return u.String(), nil
}

// normalizeName lower-cases and trims a wiki name.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// sitesFromSettings reads settings.defaults, a list of
// {name, url, article_path?, script_path?}.
func sitesFromSettings(settings ir.IRObject) ([]Site, error) {
	raw, ok := settings.Get("defaults")
	if !ok || ir.IsNull(raw) {
		return nil, nil
	}
	list, ok := raw.(ir.IRArray)
	if !ok {
		return nil, fmt.Errorf("settings.defaults must be a list")
	}

	sites := make([]Site, 0, len(list))
	seen := make(map[string]bool, len(list))
	for i, v := range list {
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("settings.defaults[%d] must be a struct", i)
		}
		name := normalizeName(obj.String("name"))
		if name == "" {
			return nil, fmt.Errorf("settings.defaults[%d] has no name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("settings.defaults[%d]: duplicate wiki %q", i, name)
		}
		seen[name] = true
		u, err := normalizeURL(obj.String("url"))
		if err != nil {
			return nil, fmt.Errorf("settings.defaults[%d]: %w", i, err)
		}
		sites = append(sites, Site{
			Name:        name,
			URL:         u,
			ScriptPath:  obj.String("script_path"),
			ArticlePath: obj.String("article_path"),
		})
	}
	return sites, nil
}
