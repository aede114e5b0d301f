package detect

import (
	"regexp"
	"strings"
)

// minItemTextLen rejects stray icons and empty panel rows.
const minItemTextLen = 10

// announcementKeywords mark an item as announcement-like when it carries
// no announcement href. Local-language first: the portal renders Turkish.
var announcementKeywords = []string{
	"duyuru", "announcement", "notice", "yeni", "eklendi",
}

// menuDenylist drops pooled candidates that are really portal chrome.
// A denylist, not an allowlist: menu wording is far more stable than
// announcement wording.
var menuDenylist = []string{
	"takvim", "kaynaklar", "ayarlar", "profil",
	"ders listesi", "ana sayfa", "temizle",
}

// announcementHref reports whether a link target looks like an
// announcement detail page.
func announcementHref(href string) bool {
	if href == "" {
		return false
	}
	return strings.Contains(href, "/announcement") || strings.Contains(href, "directtool")
}

func hasKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range announcementKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// deniedTerm returns the menu term that disqualifies the candidate, or "".
// Only the title is checked — for link-discovered candidates the title IS
// the link text — never the full item text, which routinely mentions menu
// words in passing ("takviminize ekleyin").
func deniedTerm(title string) string {
	lower := strings.ToLower(title)
	for _, term := range menuDenylist {
		if strings.Contains(lower, term) {
			return term
		}
	}
	return ""
}

var quotedRe = regexp.MustCompile(`"([^"]*)"`)

// unquoteTitle recovers the announcement's own title from the panel
// phrasing `X "COURSE"'de "TITLE" duyurusunu eklendi`: the last quoted
// segment before "eklendi". Anything else passes through unchanged.
func unquoteTitle(title string) string {
	if !strings.Contains(title, `"`) || !strings.Contains(strings.ToLower(title), "eklendi") {
		return title
	}
	matches := quotedRe.FindAllStringSubmatch(title, -1)
	if len(matches) >= 2 {
		return matches[len(matches)-1][1]
	}
	return title
}
