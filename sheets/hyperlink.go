package sheets

import "regexp"

var hyperlinkRe = regexp.MustCompile(`(?i)^=HYPERLINK\(\s*"([^"]*)"\s*,\s*"([^"]*)"\s*\)$`)

// Hyperlink is the parsed form of a =HYPERLINK("href","text") formula.
type Hyperlink struct {
	Text string
	Href string
}

// ParseHyperlink extracts text and href from a HYPERLINK formula. A formula
// that is not a hyperlink yields a zero Hyperlink.
func ParseHyperlink(formula string) Hyperlink {
	m := hyperlinkRe.FindStringSubmatch(formula)
	if m == nil {
		return Hyperlink{}
	}
	return Hyperlink{Href: m[1], Text: m[2]}
}
