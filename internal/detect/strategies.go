package detect

import (
	"strings"

	"github.com/hazyhaar/bullhorn/internal/surface"
)

// candidate is a raw find produced by a strategy, before the admission
// gates run.
type candidate struct {
	title string // first rendered line of the item
	text  string // full visible text, used by the length/keyword gates
	href  string // detail link if the strategy found one, possibly relative
	when  string // panel-relative time label, observability only
}

type strategy struct {
	name string
	find func(*surface.Snapshot) []candidate
}

// panelStrategies are tried in order against the opened-panel snapshot;
// every strategy that matches contributes to the pool.
var panelStrategies = []strategy{
	{name: "alert-containers", find: findAlertContainers},
	{name: "notification-list", find: findNotificationList},
	{name: "notification-items", find: findNotificationItems},
	{name: "link-pattern", find: findAnnouncementLinks},
	{name: "keyword", find: findKeywordBlocks},
}

// pageStrategies run over the home page only when the panel yielded nothing
// and page search is enabled. The structural strategies are panel-specific,
// so only the broad ones apply.
var pageStrategies = []strategy{
	{name: "page-links", find: findAnnouncementLinks},
	{name: "page-keyword", find: findKeywordBlocks},
}

// BadgeCount reads the numeric notification badge near the bullhorn icon.
// Zero means no badge found or a zero badge; the panel is scanned either
// way, the count is an observability signal only.
func BadgeCount(snap *surface.Snapshot) int {
	bell := snap.ByID("Mrphs-bullhorn")
	if !bell.Exists() {
		return 0
	}
	if n := digits(bell.ByID("bullhorn-counter").Text()); n > 0 {
		return n
	}
	for _, c := range bell.ByClass("bullhorn-counter-red") {
		if n := digits(c.Text()); n > 0 {
			return n
		}
	}
	for _, span := range bell.ByTag("span") {
		if n := digits(span.Text()); n > 0 {
			return n
		}
	}
	return 0
}

func digits(s string) int {
	n := 0
	found := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			found = true
		}
	}
	if !found {
		return 0
	}
	return n
}

// findAlertContainers reads div.portal-bullhorn-alert containers, the
// structure Sakai 12.x+ renders inside the bullhorn panel.
func findAlertContainers(snap *surface.Snapshot) []candidate {
	var out []candidate
	for _, alert := range snap.Select("div.portal-bullhorn-alert") {
		var c candidate
		if link := alert.First("a[href*=/announcement]"); link.Exists() {
			c.href = link.Attr("href")
		}
		msg := alert.First("div.portal-bullhorn-message")
		if msg.Exists() {
			c.text = msg.Text()
			c.title = firstLine(msg)
		}
		if c.text == "" {
			// Some skins put the text straight in the container.
			c.text = alert.Text()
			c.title = firstLine(alert)
		}
		if t := alert.First("div.portal-bullhorn-time"); t.Exists() {
			c.when = surface.CleanText(t.Text())
		}
		out = append(out, c)
	}
	return out
}

// findNotificationList reads ul#notification-list items, an older panel
// structure.
func findNotificationList(snap *surface.Snapshot) []candidate {
	return itemCandidates(snap.Select("ul#notification-list li"))
}

// findNotificationItems covers skins that render loose notification-item
// blocks, plus bullhorn message divs that sit outside an alert container
// (those inside one were already claimed by findAlertContainers).
func findNotificationItems(snap *surface.Snapshot) []candidate {
	nodes := snap.Select("div[class*=notification-item]")
	for _, msg := range snap.ByClass("portal-bullhorn-message") {
		if !msg.HasAncestorClass("portal-bullhorn-alert") {
			nodes = append(nodes, msg)
		}
	}
	return itemCandidates(nodes)
}

// findAnnouncementLinks scans every anchor whose target looks like an
// announcement detail page.
func findAnnouncementLinks(snap *surface.Snapshot) []candidate {
	var out []candidate
	for _, l := range snap.Links() {
		if !announcementHref(l.Href) {
			continue
		}
		out = append(out, candidate{title: l.Text, text: l.Text, href: l.Href})
	}
	return out
}

// keywordScanLimit bounds the whole-surface element scan.
const keywordScanLimit = 100

// findKeywordBlocks is the last resort: text blocks mentioning an
// announcement keyword. Noisy by nature; the admission gates and the pool
// keep it in check.
func findKeywordBlocks(snap *surface.Snapshot) []candidate {
	var nodes []surface.Node
	for _, tag := range []string{"div", "li", "article"} {
		nodes = append(nodes, snap.Root().ByTag(tag)...)
	}
	if len(nodes) > keywordScanLimit {
		nodes = nodes[:keywordScanLimit]
	}
	var out []candidate
	for _, n := range nodes {
		text := n.Text()
		if len([]rune(text)) <= minItemTextLen {
			continue
		}
		if !hasKeyword(text) {
			continue
		}
		c := candidate{title: firstLine(n), text: text}
		if a := n.First("a"); a.Exists() {
			c.href = a.Attr("href")
		}
		out = append(out, c)
	}
	return out
}

func itemCandidates(nodes []surface.Node) []candidate {
	var out []candidate
	for _, n := range nodes {
		c := candidate{title: firstLine(n), text: n.Text()}
		if a := n.First("a"); a.Exists() {
			c.href = a.Attr("href")
		}
		out = append(out, c)
	}
	return out
}

func firstLine(n surface.Node) string {
	if lines := n.Lines(); len(lines) > 0 {
		return lines[0]
	}
	return strings.TrimSpace(n.Text())
}
