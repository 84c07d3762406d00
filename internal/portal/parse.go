package portal

import (
	"regexp"
	"strconv"
)

var (
	displayCountRe = regexp.MustCompile(`Displaying\s+(\d+)\s*-\s*(\d+)\s+of\s+(\d+)`)
	totalPagesRe   = regexp.MustCompile(`Page\s+\d+\s+of\s+(\d+)`)
	refPhraseRe    = regexp.MustCompile(`(?i)reference\s+number\s+is\s+([A-Za-z0-9]+)`)
	refBareRe      = regexp.MustCompile(`([A-Z]\d{6,})`)
)

// DisplayCount is a parsed "Displaying A - B of N result(s)" summary.
type DisplayCount struct {
	Start int
	End   int
	Total int
}

// ParseDisplayCount parses the results summary line.
// "Displaying 1 - 7 of 7 results" -> {1, 7, 7}, true.
func ParseDisplayCount(text string) (DisplayCount, bool) {
	m := displayCountRe.FindStringSubmatch(text)
	if m == nil {
		return DisplayCount{}, false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	total, _ := strconv.Atoi(m[3])
	return DisplayCount{Start: start, End: end, Total: total}, true
}

// ParseTotalPages parses "Page 1 of 16" and returns the page count,
// defaulting to 1 when the text is unreadable.
func ParseTotalPages(text string) int {
	m := totalPagesRe.FindStringSubmatch(text)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ParseReference extracts the payment reference token from a success
// message. The explicit "reference number is X" phrasing wins; a bare
// letter-plus-six-digits token is the fallback. Empty means unparseable.
func ParseReference(text string) string {
	if m := refPhraseRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := refBareRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
