package extract

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/adhound/adhound/internal/types"
)

// runLinks is the last-resort strategy: scan every anchor whose href looks
// like a listing detail page and recover what fields the anchor itself
// carries. It trades precision for resilience against layout changes.
func (p *Pipeline) runLinks(ctx context.Context, _ *goquery.Document, body string, keep KeepFunc, out *Outcome) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return
	}
	seen := map[string]bool{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if ctx.Err() != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			p.admitAnchor(n, keep, seen, out)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

func (p *Pipeline) admitAnchor(n *html.Node, keep KeepFunc, seen map[string]bool, out *Outcome) {
	href := nodeAttr(n, "href")
	if href == "" || !p.linkRe.MatchString(href) {
		return
	}
	link := NormalizeLink(href, p.cfg.BaseURL)
	if link == "" || seen[link] {
		return
	}

	text := CleanTitle(nodeText(n))
	title := text
	if title == "" {
		title = CleanTitle(nodeAttr(n, "title"))
	}
	if title == "" || len(title) < 3 {
		return
	}
	seen[link] = true

	price := NormalizePrice(text)
	if keep != nil && !keep(title, price) {
		out.Skipped++
		return
	}
	out.Listings = append(out.Listings, types.Listing{
		Source:    p.cfg.Source,
		Title:     title,
		Price:     price,
		Link:      link,
		FetchedAt: time.Now(),
	})
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
