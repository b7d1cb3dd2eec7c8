package extract

import (
	"net/url"
	"strconv"
	"strings"
)

// tracking parameters stripped from listing links. The cleaned link is the
// dedup key, so two shares of the same listing must collapse to one url.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"igshid":  true,
	"ref":     true,
	"mc_cid":  true,
	"mc_eid":  true,
	"spm":     true,
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	return trackingParams[key]
}

// NormalizeLink turns a raw href into a canonical absolute url: resolved
// against the base, fragment dropped, tracking parameters stripped and the
// host lower-cased. An unusable href yields an empty string.
func NormalizeLink(raw, baseURL string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return ""
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	q := u.Query()
	for key := range q {
		if isTrackingParam(key) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// NormalizePrice pulls a price out of currency-formatted text. The first
// numeric token wins, so a range like "$1,000 - $1,500" yields its lower
// bound. Unparseable text yields nil rather than a dropped record.
func NormalizePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	rawLC := strings.ToLower(raw)
	if strings.Contains(rawLC, "free") || strings.Contains(rawLC, "gratis") {
		zero := 0.0
		return &zero
	}
	token := firstNumericToken(raw)
	if token == "" {
		return nil
	}
	v, err := strconv.ParseFloat(decimalize(token), 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func firstNumericToken(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start == -1 {
		return ""
	}
	end := start
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == ',' || c == '.' {
			end++
			continue
		}
		break
	}
	return strings.Trim(s[start:end], ",.")
}

// decimalize resolves the ",  ." ambiguity of price tokens. "1,000" and
// "1.000" are thousands, "10.99" and "10,99" are decimals, "1.000,50" is
// european notation.
func decimalize(token string) string {
	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastComma >= 0:
		if len(token)-lastComma-1 == 3 || strings.Count(token, ",") > 1 {
			token = strings.ReplaceAll(token, ",", "")
		} else {
			token = strings.Replace(token, ",", ".", 1)
		}
	case lastDot >= 0:
		if len(token)-lastDot-1 == 3 && strings.Count(token, ".") == 1 {
			token = strings.ReplaceAll(token, ".", "")
		}
	}
	return token
}

// placeholder image markers. An image url containing one of these is
// treated as missing.
var placeholderMarkers = []string{
	"placeholder",
	"no-image",
	"noimage",
	"no_image",
	"missing_image",
	"blank.",
	"spacer",
	"1x1",
	"pixel.gif",
	"data:image/gif",
}

// AcceptableImage reports whether an image url looks like a real photo
// rather than a placeholder. Extra markers extend the builtin denylist.
func AcceptableImage(src string, extraMarkers []string) bool {
	if strings.TrimSpace(src) == "" {
		return false
	}
	srcLC := strings.ToLower(src)
	for _, m := range placeholderMarkers {
		if strings.Contains(srcLC, m) {
			return false
		}
	}
	for _, m := range extraMarkers {
		if m != "" && strings.Contains(srcLC, strings.ToLower(m)) {
			return false
		}
	}
	return true
}

// CleanTitle collapses whitespace runs and trims the result.
func CleanTitle(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
