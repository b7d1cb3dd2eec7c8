// Package types defines shared types used across the application.
package types

import "time"

// Listing is a normalized marketplace listing as it leaves the parsing
// pipeline. Link doubles as the deduplication key and is therefore always
// absolute with tracking parameters stripped.
type Listing struct {
	Source    string     `json:"source"`
	Title     string     `json:"title"`
	Price     *float64   `json:"price,omitempty"`
	Link      string     `json:"link"`
	Image     string     `json:"image,omitempty"`
	Location  string     `json:"location,omitempty"`
	PostedAt  *time.Time `json:"postedAt,omitempty"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

// Interaction represents a simple user interaction with a webpage
type Interaction struct {
	Type     string `yaml:"type,omitempty"`
	Selector string `yaml:"selector,omitempty"`
	Count    int    `yaml:"count,omitempty"`
	Delay    int    `yaml:"delay,omitempty"`
}

const (
	InteractionTypeClick  = "click"
	InteractionTypeScroll = "scroll"
)
