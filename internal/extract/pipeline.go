// Package extract turns raw marketplace pages into normalized listing
// records. Extraction strategies are tried in order from the most precise
// (structured data) to the most forgiving (link patterns), the first one
// that yields a plausible record wins.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/adhound/adhound/internal/log"
	"github.com/adhound/adhound/internal/types"
)

// ErrNoStrategy is returned when no strategy produced a single plausible
// record. Callers treat this as layout drift, not as a fetch failure.
var ErrNoStrategy = errors.New("no parsing strategy produced listings")

// Strategy names the extraction strategy that produced a run's listings.
type Strategy string

const (
	StrategyJSONLD  Strategy = "jsonld"
	StrategyPrimary Strategy = "primary"
	StrategyLegacy  Strategy = "legacy"
	StrategyLinks   Strategy = "links"
	StrategyNone    Strategy = "none"
)

// Selectors describes how to find items and their fields on a page.
type Selectors struct {
	Item     string          `yaml:"item"`
	Title    ElementLocation `yaml:"title"`
	Price    ElementLocation `yaml:"price"`
	Link     ElementLocation `yaml:"link"`
	Image    ElementLocation `yaml:"image"`
	Location ElementLocation `yaml:"location"`
	Posted   ElementLocation `yaml:"posted"`
}

// A KeepFunc is the early-exit filter applied to candidates before the
// expensive fields are extracted. A nil KeepFunc keeps everything.
type KeepFunc func(title string, price *float64) bool

// Config wires a pipeline for one source.
type Config struct {
	Source            string
	BaseURL           string
	Primary           *Selectors
	Legacy            *Selectors
	LinkPattern       string
	DateLanguage      string
	PlaceholderImages []string
}

// defaultLinkPattern matches the detail-page shapes most marketplaces use.
var defaultLinkPattern = `(?i)/(item|itm|listing|ad|offer|product|d)s?/`

// Pipeline extracts listings from pages of a single source.
type Pipeline struct {
	cfg    *Config
	linkRe *regexp.Regexp
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	Listings []types.Listing
	Strategy Strategy
	// Skipped counts plausible candidates the keep filter rejected.
	Skipped int
}

func NewPipeline(cfg *Config) (*Pipeline, error) {
	pattern := cfg.LinkPattern
	if pattern == "" {
		pattern = defaultLinkPattern
	}
	linkRe, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid link pattern for source %s: %w", cfg.Source, err)
	}
	return &Pipeline{cfg: cfg, linkRe: linkRe}, nil
}

type strategyFunc func(ctx context.Context, doc *goquery.Document, body string, keep KeepFunc, out *Outcome)

// Run parses a page body. The winning strategy is recorded in the outcome,
// falling past the primary selectors is logged since it usually means the
// source changed its layout. The context bounds the whole run, strategies
// stop mid-page once it is cancelled.
func (p *Pipeline) Run(ctx context.Context, body string, keep KeepFunc) (*Outcome, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("source", p.cfg.Source))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	strategies := []struct {
		name Strategy
		run  strategyFunc
	}{
		{StrategyJSONLD, p.runJSONLD},
		{StrategyPrimary, p.runPrimary},
		{StrategyLegacy, p.runLegacy},
		{StrategyLinks, p.runLinks},
	}

	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parsing aborted: %w", err)
		}
		out := &Outcome{Strategy: s.name}
		s.run(ctx, doc, body, keep, out)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parsing aborted: %w", err)
		}
		if len(out.Listings)+out.Skipped == 0 {
			continue
		}
		if i > 1 {
			logger.Warn("primary extraction failed, a fallback strategy won",
				slog.String("strategy", string(s.name)),
				slog.Int("listings", len(out.Listings)))
		} else {
			logger.Debug("extraction strategy won",
				slog.String("strategy", string(s.name)),
				slog.Int("listings", len(out.Listings)),
				slog.Int("skipped", out.Skipped))
		}
		return out, nil
	}
	return &Outcome{Strategy: StrategyNone}, ErrNoStrategy
}

func (p *Pipeline) runPrimary(ctx context.Context, doc *goquery.Document, _ string, keep KeepFunc, out *Outcome) {
	if p.cfg.Primary != nil {
		p.runSelectors(ctx, doc, p.cfg.Primary, keep, out)
	}
}

func (p *Pipeline) runLegacy(ctx context.Context, doc *goquery.Document, _ string, keep KeepFunc, out *Outcome) {
	if p.cfg.Legacy != nil {
		p.runSelectors(ctx, doc, p.cfg.Legacy, keep, out)
	}
}

func (p *Pipeline) runSelectors(ctx context.Context, doc *goquery.Document, sel *Selectors, keep KeepFunc, out *Outcome) {
	if sel.Item == "" {
		return
	}
	seen := map[string]bool{}
	doc.Find(sel.Item).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		title := p.itemTitle(s, sel)
		link := p.itemLink(s, sel)
		if title == "" || link == "" || seen[link] {
			return true
		}
		seen[link] = true

		var price *float64
		if !sel.Price.IsZero() {
			priceText, _ := textFromLocation(s, sel.Price)
			price = NormalizePrice(priceText)
		}

		// cheap fields first, the filter runs before image and date work
		if keep != nil && !keep(title, price) {
			out.Skipped++
			return true
		}

		listing := types.Listing{
			Source:    p.cfg.Source,
			Title:     title,
			Price:     price,
			Link:      link,
			FetchedAt: time.Now(),
		}
		listing.Image = p.itemImage(s, sel)
		if !sel.Location.IsZero() {
			if loc, err := textFromLocation(s, sel.Location); err == nil {
				listing.Location = CleanTitle(loc)
			}
		}
		if !sel.Posted.IsZero() {
			if postedText, err := textFromLocation(s, sel.Posted); err == nil {
				listing.PostedAt = ParsePostedAt(postedText, p.cfg.DateLanguage, time.Now())
			}
		}
		out.Listings = append(out.Listings, listing)
		return true
	})
}

// itemTitle extracts the title, falling back from the configured location
// through headings, link text and the link title attribute.
func (p *Pipeline) itemTitle(s *goquery.Selection, sel *Selectors) string {
	if !sel.Title.IsZero() {
		if t, err := textFromLocation(s, sel.Title); err == nil && t != "" {
			return CleanTitle(t)
		}
	}
	for _, heading := range []string{"h1", "h2", "h3", "h4", ".title"} {
		if t := CleanTitle(s.Find(heading).First().Text()); t != "" {
			return t
		}
	}
	anchor := s.Find("a").First()
	if t := CleanTitle(anchor.Text()); t != "" {
		return t
	}
	if t := CleanTitle(anchor.AttrOr("title", "")); t != "" {
		return t
	}
	return ""
}

func (p *Pipeline) itemLink(s *goquery.Selection, sel *Selectors) string {
	raw := ""
	if !sel.Link.IsZero() {
		raw = urlFromLocation(s, sel.Link)
	}
	if raw == "" {
		raw = s.Find("a[href]").First().AttrOr("href", "")
	}
	if raw == "" && s.Is("a") {
		raw = s.AttrOr("href", "")
	}
	return NormalizeLink(raw, p.cfg.BaseURL)
}

// lazy-load attributes tried after src
var imageAttrs = []string{"src", "data-src", "data-lazy-src", "data-original"}

func (p *Pipeline) itemImage(s *goquery.Selection, sel *Selectors) string {
	imgSel := "img"
	if sel.Image.Selector != "" {
		imgSel = sel.Image.Selector
	}
	img := s.Find(imgSel).First()
	if img.Length() == 0 {
		return ""
	}
	attrs := imageAttrs
	if sel.Image.Attr != "" {
		attrs = append([]string{sel.Image.Attr}, imageAttrs...)
	}
	for _, attr := range attrs {
		if src, ok := img.Attr(attr); ok && AcceptableImage(src, p.cfg.PlaceholderImages) {
			return NormalizeLink(src, p.cfg.BaseURL)
		}
	}
	return ""
}
