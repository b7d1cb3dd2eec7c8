package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type RegexConfig struct {
	Exp   string `yaml:"exp"`
	Index int    `yaml:"index"`
}

// ElementLocation points at a piece of text or an attribute within an item
// node.
type ElementLocation struct {
	Selector     string      `yaml:"selector"`
	NodeIndex    int         `yaml:"node_index"`
	ChildIndex   int         `yaml:"child_index"`
	RegexExtract RegexConfig `yaml:"regex_extract"`
	Attr         string      `yaml:"attr"`
	MaxLength    int         `yaml:"max_length"`
}

// IsZero reports whether the location has not been configured.
func (l ElementLocation) IsZero() bool {
	return l.Selector == "" && l.Attr == ""
}

// textFromLocation extracts a string from the given selection. Without an
// Attr the text is taken from the child text nodes, with ChildIndex -1
// meaning check all of them until the regex matches.
func textFromLocation(s *goquery.Selection, l ElementLocation) (string, error) {
	var fieldString string
	var err error
	fieldSelection := s
	if l.Selector != "" {
		fieldSelection = s.Find(l.Selector)
	}
	if len(fieldSelection.Nodes) > l.NodeIndex {
		if l.Attr == "" {
			fieldNode := fieldSelection.Get(l.NodeIndex).FirstChild
			currentChildIndex := 0
			for fieldNode != nil {
				if currentChildIndex == l.ChildIndex || l.ChildIndex == -1 {
					if fieldNode.Type == html.TextNode {
						fieldString, err = extractStringRegex(&l.RegexExtract, fieldNode.Data)
						if err == nil {
							if l.MaxLength > 0 && l.MaxLength < len(fieldString) {
								fieldString = fieldString[:l.MaxLength] + "..."
							}
							break
						} else if l.ChildIndex != -1 {
							// only when the regex is not used to search across
							// all children do we return the error
							return fieldString, err
						}
					}
				}
				fieldNode = fieldNode.NextSibling
				currentChildIndex += 1
			}
		} else {
			fieldString = fieldSelection.AttrOr(l.Attr, "")
		}
	}
	fieldString = strings.TrimSpace(fieldString)
	return fieldString, nil
}

func extractStringRegex(rc *RegexConfig, s string) (string, error) {
	extractedString := s
	if rc.Exp != "" {
		regex, err := regexp.Compile(rc.Exp)
		if err != nil {
			return "", err
		}
		matchingStrings := regex.FindAllString(s, -1)
		if len(matchingStrings) == 0 {
			msg := fmt.Sprintf("no matching strings found for regex: %s", rc.Exp)
			return "", errors.New(msg)
		}
		if rc.Index == -1 {
			extractedString = matchingStrings[len(matchingStrings)-1]
		} else {
			if rc.Index >= len(matchingStrings) {
				msg := fmt.Sprintf("regex index out of bounds. regex '%s' gave only %d matches", rc.Exp, len(matchingStrings))
				return "", errors.New(msg)
			}
			extractedString = matchingStrings[rc.Index]
		}
	}
	return extractedString, nil
}

// urlFromLocation extracts a link. The attribute defaults to href, relative
// urls are left to the caller to absolutize.
func urlFromLocation(s *goquery.Selection, l ElementLocation) string {
	attr := "href"
	if l.Attr != "" {
		attr = l.Attr
	}
	if l.Selector == "" {
		return s.AttrOr(attr, "")
	}
	return s.Find(l.Selector).AttrOr(attr, "")
}
