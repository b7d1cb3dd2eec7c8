// Package sources defines the per-marketplace profiles: where to search,
// how to build the search url from a user's settings and which selectors
// the extraction pipeline should try.
package sources

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/adhound/adhound/internal/extract"
	"github.com/adhound/adhound/internal/settings"
	"github.com/adhound/adhound/internal/types"
)

// ErrUnknownSource is returned when a profile name is not registered.
var ErrUnknownSource = errors.New("unknown source")

// Profile describes one marketplace.
type Profile struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	// SearchURL is a template with {query}, {location}, {radius},
	// {min_price} and {max_price} placeholders.
	SearchURL         string              `yaml:"search_url"`
	RenderJS          bool                `yaml:"render_js"`
	DateLanguage      string              `yaml:"date_language"`
	LinkPattern       string              `yaml:"link_pattern"`
	PlaceholderImages []string            `yaml:"placeholder_images"`
	Selectors         *extract.Selectors  `yaml:"selectors"`
	LegacySelectors   *extract.Selectors  `yaml:"legacy_selectors"`
	Interactions      []types.Interaction `yaml:"interactions"`
	WaitSelector      string              `yaml:"wait_selector"`
}

// BuildSearchURL fills the search template from a settings snapshot.
// Placeholders without a value are replaced with an empty string, most
// marketplaces ignore empty query parameters. The query uses the
// normalized keywords so the url is stable regardless of keyword casing.
func (p *Profile) BuildSearchURL(s settings.Snapshot) string {
	query := url.QueryEscape(strings.Join(s.KeywordsLower(), " "))
	u := strings.ReplaceAll(p.SearchURL, "{query}", query)
	u = strings.ReplaceAll(u, "{location}", url.QueryEscape(s.Location))
	radius := ""
	if s.RadiusKM > 0 {
		radius = strconv.Itoa(s.RadiusKM)
	}
	u = strings.ReplaceAll(u, "{radius}", radius)
	u = strings.ReplaceAll(u, "{min_price}", formatPrice(s.MinPrice))
	u = strings.ReplaceAll(u, "{max_price}", formatPrice(s.MaxPrice))
	return u
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

// Pipeline builds the extraction pipeline for this profile.
func (p *Profile) Pipeline() (*extract.Pipeline, error) {
	return extract.NewPipeline(&extract.Config{
		Source:            p.Name,
		BaseURL:           p.BaseURL,
		Primary:           p.Selectors,
		Legacy:            p.LegacySelectors,
		LinkPattern:       p.LinkPattern,
		DateLanguage:      p.DateLanguage,
		PlaceholderImages: p.PlaceholderImages,
	})
}

func (p *Profile) validate() error {
	if p.Name == "" {
		return errors.New("source profile needs a name")
	}
	if p.SearchURL == "" {
		return fmt.Errorf("source profile %s needs a search_url", p.Name)
	}
	return nil
}

// Registry holds the known source profiles, seeded with the builtins.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewRegistry() *Registry {
	r := &Registry{profiles: map[string]*Profile{}}
	for _, p := range builtinProfiles() {
		r.profiles[p.Name] = p
	}
	return r
}

func (r *Registry) Get(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return p, nil
}

// Add registers a profile, replacing any builtin of the same name.
func (r *Registry) Add(p *Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
	return nil
}

// Names returns the registered profile names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
