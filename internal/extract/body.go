package extract

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/bullhorn/internal/surface"
)

// titleSelectors are tried in order; the first match with a non-trivial
// text wins. Headings come first so a themed skin's decorative .title
// spans cannot shadow the real heading.
var titleSelectors = []string{
	"h1",
	"h2",
	".announcementTitle",
	".portletTitle",
	".title",
	"span.title",
}

// contentSelectors are tried in order, most specific first. A candidate
// region must carry enough text to plausibly be the message, otherwise
// the next selector gets a chance.
var contentSelectors = []string{
	".announcementBody",
	".announcement-content",
	".msgBody",
	"#main",
	".portletBody",
	".sakai-content",
	".content",
	"article",
}

const minRegionTextRunes = 20

// messageLabel and attachmentLabels are the row labels of the Sakai
// announcement detail table. Matching is exact on cleaned lines.
const messageLabel = "Mesaj"

var attachmentLabels = map[string]bool{
	"Ekler":       true,
	"Dosyalar":    true,
	"Attachments": true,
	"Eklentiler":  true,
}

// attachmentSkipTerms mark metadata rows inside the attachments section
// (uploader, date, revision) that are not attachment names.
var attachmentSkipTerms = []string{"ekleyen", "tarih", "düzenleme"}

// metadataPrefixes open header rows of the detail table. Used by the
// fallback that keeps everything except the header.
var metadataPrefixes = []string{
	"Ekleyen",
	"Düzenlenme",
	"Gruplar",
	"Ekler",
	"Dosyalar",
}

func findPageTitle(snap *surface.Snapshot) string {
	for _, sel := range titleSelectors {
		for _, n := range snap.Select(sel) {
			if t := surface.CleanText(n.Text()); len([]rune(t)) > 3 {
				return t
			}
		}
	}
	return ""
}

func findContentRegion(snap *surface.Snapshot) (surface.Node, string) {
	for _, sel := range contentSelectors {
		for _, n := range snap.Select(sel) {
			if len([]rune(n.Text())) > minRegionTextRunes {
				return n, sel
			}
		}
	}
	return surface.Node{}, ""
}

// sliceBody keeps the lines between the "Mesaj" label and the first
// attachments label as the body, and the attachments section's
// non-metadata lines as attachment names. Lines outside both sections
// are dropped.
func sliceBody(lines []string) (body string, attachments []string) {
	var bodyLines []string
	inMessage, inAttachments := false, false
	for _, line := range lines {
		switch {
		case line == messageLabel:
			inMessage, inAttachments = true, false
		case attachmentLabels[line]:
			inMessage, inAttachments = false, true
		case inMessage:
			bodyLines = append(bodyLines, line)
		case inAttachments && !attachmentMetadata(line):
			attachments = append(attachments, line)
		}
	}
	return strings.Join(bodyLines, "\n"), attachments
}

// sliceBodyStrict is the whole-document variant: body starts after
// "Mesaj" and stops dead at the first attachments label, so trailing
// portal chrome can never leak in. No attachment collection.
func sliceBodyStrict(lines []string) string {
	var out []string
	in := false
	for _, line := range lines {
		if line == messageLabel {
			in = true
			continue
		}
		if attachmentLabels[line] {
			break
		}
		if in {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// dropMetadata keeps region lines that are not header rows. Fallback for
// skins that render the message without a "Mesaj" label.
func dropMetadata(lines []string) string {
	var out []string
	for _, line := range lines {
		if hasMetadataPrefix(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func hasMetadataPrefix(line string) bool {
	for _, p := range metadataPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func attachmentMetadata(line string) bool {
	lower := strings.ToLower(line)
	for _, term := range attachmentSkipTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// findAttachmentLinks recovers attachments from markup when line slicing
// found none: locate the attachments label, then list the links of its
// enclosing element.
func findAttachmentLinks(snap *surface.Snapshot) []string {
	for _, label := range []string{"Ekler", "Dosyalar"} {
		for _, n := range snap.ByTextContains(label) {
			parent := n.Parent()
			if !parent.Exists() {
				continue
			}
			var out []string
			for _, l := range parent.Links() {
				if l.Text == "" || l.Href == "" {
					continue
				}
				out = append(out, fmt.Sprintf("%s (%s)", l.Text, snap.Resolve(l.Href)))
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// documentLines renders the whole document body as cleaned lines.
func documentLines(snap *surface.Snapshot) []string {
	if body := snap.First("body"); body.Exists() {
		return body.Lines()
	}
	return snap.Root().Lines()
}
