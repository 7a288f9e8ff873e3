package tracking

import (
	"fmt"
	"regexp"
	"strings"
)

// LinkMapping records one rewritten href occurrence. The caller persists
// these so the click-redirect handler can resolve linkID back to the
// original destination.
type LinkMapping struct {
	LinkID     string
	OriginalURL string
	TrackingID string
}

// hrefPattern matches href attributes with either quote style. RE2 has no
// backreferences, so the two styles are separate alternatives; submatch 1/2
// carry the double-quoted URL, 3/4 the single-quoted one.
var hrefPattern = regexp.MustCompile(`href=(")([^"]+)"|href=(')([^']+)'`)

// stripTagsPattern removes markup when deriving the plain-text alternative.
var stripTagsPattern = regexp.MustCompile(`<[^>]*>`)

// TrackingPixel returns the beacon image tag for a tracking id.
func TrackingPixel(trackingID, baseURL string) string {
	pixelURL := fmt.Sprintf("%s/track/open/%s", baseURL, trackingID)
	return fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none;" alt="" />`, pixelURL)
}

// InjectTrackingPixel inserts the open beacon immediately before </body>,
// or appends it when the document has no closing body tag. Callers invoke
// this exactly once per recipient; no duplicate detection is attempted.
func InjectTrackingPixel(html, trackingID, baseURL string) string {
	pixel := TrackingPixel(trackingID, baseURL)
	if strings.Contains(html, "</body>") {
		return strings.Replace(html, "</body>", pixel+"</body>", 1)
	}
	return html + pixel
}

// ExtractLinks returns every trackable href target in document order.
// mailto:, tel: and same-page fragment links are not trackable.
func ExtractLinks(html string) []string {
	var links []string
	for _, m := range hrefPattern.FindAllStringSubmatch(html, -1) {
		url := m[2]
		if url == "" {
			url = m[4]
		}
		if skipLink(url) {
			continue
		}
		links = append(links, url)
	}
	return links
}

// RewriteLinks replaces each trackable href occurrence with a redirect URL
// carrying a fresh link id, and returns the id→destination mappings.
//
// The scan runs once against the original body while replacements apply to
// the working copy, each as a first-match-only literal substitution. A URL
// appearing twice therefore yields two mappings with distinct ids, and
// replacing occurrence k never disturbs occurrence k+1 (the rewritten text
// no longer matches the search pattern). Unmatched quote pairs simply never
// match and are left untouched.
func RewriteLinks(html, trackingID, baseURL string, newLinkID func() string) (string, []LinkMapping) {
	var mappings []LinkMapping
	modified := html

	for _, m := range hrefPattern.FindAllStringSubmatch(html, -1) {
		quote, url := `"`, m[2]
		if url == "" {
			quote, url = `'`, m[4]
		}
		if skipLink(url) {
			continue
		}

		linkID := newLinkID()
		trackedURL := fmt.Sprintf("%s/track/click/%s", baseURL, linkID)

		search := "href=" + quote + url + quote
		replacement := "href=" + quote + trackedURL + quote
		if !strings.Contains(modified, search) {
			continue
		}
		modified = strings.Replace(modified, search, replacement, 1)

		mappings = append(mappings, LinkMapping{
			LinkID:      linkID,
			OriginalURL: url,
			TrackingID:  trackingID,
		})
	}

	return modified, mappings
}

// StripTags derives the plain-text alternative from personalized HTML.
func StripTags(html string) string {
	return stripTagsPattern.ReplaceAllString(html, "")
}

func skipLink(url string) bool {
	return strings.HasPrefix(url, "mailto:") ||
		strings.HasPrefix(url, "tel:") ||
		strings.HasPrefix(url, "#")
}
