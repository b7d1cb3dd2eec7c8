package sources

import (
	"github.com/adhound/adhound/internal/extract"
	"github.com/adhound/adhound/internal/types"
)

// builtinProfiles returns the marketplaces supported out of the box.
// Profiles loaded from disk can override any of them by name.
func builtinProfiles() []*Profile {
	return []*Profile{
		{
			Name:      "craigslist",
			BaseURL:   "https://craigslist.org",
			SearchURL: "https://craigslist.org/search/sss?query={query}&min_price={min_price}&max_price={max_price}",
			Selectors: &extract.Selectors{
				Item:     "li.cl-static-search-result",
				Title:    extract.ElementLocation{Selector: "div.title"},
				Price:    extract.ElementLocation{Selector: "div.price"},
				Link:     extract.ElementLocation{Selector: "a"},
				Location: extract.ElementLocation{Selector: "div.location"},
			},
			LegacySelectors: &extract.Selectors{
				Item:   "li.result-row",
				Title:  extract.ElementLocation{Selector: "a.result-title"},
				Price:  extract.ElementLocation{Selector: "span.result-price"},
				Link:   extract.ElementLocation{Selector: "a.result-title"},
				Posted: extract.ElementLocation{Selector: "time", Attr: "datetime"},
			},
			LinkPattern: `craigslist\.org/.*\.html`,
		},
		{
			Name:      "offerup",
			BaseURL:   "https://offerup.com",
			SearchURL: "https://offerup.com/search?q={query}&price_min={min_price}&price_max={max_price}",
			RenderJS:  true,
			Selectors: &extract.Selectors{
				Item:  "a[href*='/item/detail']",
				Title: extract.ElementLocation{Attr: "title"},
				Image: extract.ElementLocation{Selector: "img"},
			},
			LinkPattern:  `/item/detail/`,
			WaitSelector: "a[href*='/item/detail']",
			Interactions: []types.Interaction{
				{Type: types.InteractionTypeScroll, Delay: 1500},
			},
		},
		{
			Name:      "facebook",
			BaseURL:   "https://www.facebook.com",
			SearchURL: "https://www.facebook.com/marketplace/search?query={query}&minPrice={min_price}&maxPrice={max_price}",
			RenderJS:  true,
			Selectors: &extract.Selectors{
				Item:  "a[href*='/marketplace/item/']",
				Image: extract.ElementLocation{Selector: "img"},
			},
			LinkPattern:  `/marketplace/item/`,
			WaitSelector: "a[href*='/marketplace/item/']",
			Interactions: []types.Interaction{
				{Type: types.InteractionTypeScroll, Count: 2, Delay: 2000},
			},
			PlaceholderImages: []string{"static.xx.fbcdn.net/rsrc"},
		},
		{
			Name:      "ebay",
			BaseURL:   "https://www.ebay.com",
			SearchURL: "https://www.ebay.com/sch/i.html?_nkw={query}&_udlo={min_price}&_udhi={max_price}",
			Selectors: &extract.Selectors{
				Item:     "li.s-item",
				Title:    extract.ElementLocation{Selector: "div.s-item__title"},
				Price:    extract.ElementLocation{Selector: "span.s-item__price"},
				Link:     extract.ElementLocation{Selector: "a.s-item__link"},
				Image:    extract.ElementLocation{Selector: "div.s-item__image-wrapper img"},
				Location: extract.ElementLocation{Selector: "span.s-item__location"},
			},
			LinkPattern:       `/itm/`,
			PlaceholderImages: []string{"ir.ebaystatic.com"},
		},
		{
			Name:         "kleinanzeigen",
			BaseURL:      "https://www.kleinanzeigen.de",
			SearchURL:    "https://www.kleinanzeigen.de/s-suchanfrage.html?keywords={query}&locationStr={location}&radius={radius}&minPrice={min_price}&maxPrice={max_price}",
			DateLanguage: "de_DE",
			Selectors: &extract.Selectors{
				Item:     "article.aditem",
				Title:    extract.ElementLocation{Selector: "a.ellipsis"},
				Price:    extract.ElementLocation{Selector: "p.aditem-main--middle--price-shipping--price"},
				Link:     extract.ElementLocation{Selector: "a.ellipsis"},
				Image:    extract.ElementLocation{Selector: "div.imagebox img"},
				Location: extract.ElementLocation{Selector: "div.aditem-main--top--left"},
				Posted:   extract.ElementLocation{Selector: "div.aditem-main--top--right"},
			},
			LinkPattern: `/s-anzeige/`,
		},
		{
			Name:         "marktplaats",
			BaseURL:      "https://www.marktplaats.nl",
			SearchURL:    "https://www.marktplaats.nl/q/{query}/",
			DateLanguage: "nl_NL",
			Selectors: &extract.Selectors{
				Item:     "li.hz-Listing",
				Title:    extract.ElementLocation{Selector: "h3.hz-Listing-title"},
				Price:    extract.ElementLocation{Selector: "p.hz-Listing-price"},
				Link:     extract.ElementLocation{Selector: "a.hz-Listing-coverLink"},
				Image:    extract.ElementLocation{Selector: "img.hz-Listing-image-item"},
				Location: extract.ElementLocation{Selector: "span.hz-Listing-distance-label"},
			},
			LinkPattern: `/v/|/a/`,
		},
	}
}
