package extract

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/jsonquery"

	"github.com/adhound/adhound/internal/types"
)

// runJSONLD extracts listings from schema.org structured data blocks.
// Product nodes are collected wherever they appear, whether standalone,
// inside an ItemList or inside an @graph array.
func (p *Pipeline) runJSONLD(ctx context.Context, doc *goquery.Document, _ string, keep KeepFunc, out *Outcome) {
	seen := map[string]bool{}
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		jdoc, err := jsonquery.Parse(strings.NewReader(s.Text()))
		if err != nil {
			return true
		}
		var products []*jsonquery.Node
		collectProducts(jdoc, &products)
		for _, product := range products {
			p.admitProduct(product, keep, seen, out)
		}
		return true
	})
}

// collectProducts walks the json tree and gathers every node whose @type
// is Product.
func collectProducts(n *jsonquery.Node, products *[]*jsonquery.Node) {
	if t := childNode(n, "@type"); t != nil {
		if s, ok := t.Value().(string); ok && s == "Product" {
			*products = append(*products, n)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectProducts(c, products)
	}
}

func (p *Pipeline) admitProduct(product *jsonquery.Node, keep KeepFunc, seen map[string]bool, out *Outcome) {
	title := CleanTitle(childString(product, "name"))
	link := NormalizeLink(childString(product, "url"), p.cfg.BaseURL)
	if title == "" || link == "" || seen[link] {
		return
	}
	seen[link] = true

	price := productPrice(product)
	if keep != nil && !keep(title, price) {
		out.Skipped++
		return
	}

	out.Listings = append(out.Listings, types.Listing{
		Source:    p.cfg.Source,
		Title:     title,
		Price:     price,
		Link:      link,
		Image:     p.productImage(product),
		FetchedAt: time.Now(),
	})
}

// productPrice reads offers.price, preferring lowPrice so that aggregate
// offers resolve to the lower bound of their range.
func productPrice(product *jsonquery.Node) *float64 {
	offers := childNode(product, "offers")
	if offers == nil {
		return nil
	}
	for _, key := range []string{"lowPrice", "price"} {
		if n := findDescendant(offers, key); n != nil {
			switch v := n.Value().(type) {
			case float64:
				if v >= 0 {
					price := v
					return &price
				}
			case string:
				if price := NormalizePrice(v); price != nil {
					return price
				}
			}
		}
	}
	return nil
}

func (p *Pipeline) productImage(product *jsonquery.Node) string {
	img := childNode(product, "image")
	if img == nil {
		return ""
	}
	// image may be a string or an array of strings
	if s, ok := img.Value().(string); ok {
		if AcceptableImage(s, p.cfg.PlaceholderImages) {
			return NormalizeLink(s, p.cfg.BaseURL)
		}
		return ""
	}
	for c := img.FirstChild; c != nil; c = c.NextSibling {
		if s, ok := c.Value().(string); ok && AcceptableImage(s, p.cfg.PlaceholderImages) {
			return NormalizeLink(s, p.cfg.BaseURL)
		}
	}
	return ""
}

// childNode returns the direct child with the given key. Keys like @type
// cannot go through xpath, so the children are scanned directly.
func childNode(n *jsonquery.Node, key string) *jsonquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Data == key {
			return c
		}
	}
	return nil
}

func childString(n *jsonquery.Node, key string) string {
	c := childNode(n, key)
	if c == nil {
		return ""
	}
	if s, ok := c.Value().(string); ok {
		return s
	}
	return ""
}

// findDescendant returns the first node with the given key, depth first.
func findDescendant(n *jsonquery.Node, key string) *jsonquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Data == key {
			return c
		}
		if found := findDescendant(c, key); found != nil {
			return found
		}
	}
	return nil
}
