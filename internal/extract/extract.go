// Package extract turns a detail-page snapshot into a normalized
// announcement: title, message body, attachment list.
//
// Sakai detail pages are label/value layouts — the message body sits
// between a "Mesaj" label and an attachments label — so the primary path
// slices rendered text lines. Markup conversion and readability recovery
// back the cases where the labels are missing or the skin renders
// something else entirely.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/bullhorn/internal/detect"
	"github.com/hazyhaar/bullhorn/internal/surface"
)

// maxBodyRunes caps the extracted body before message composition.
const maxBodyRunes = 1500

// Announcement is a reference with its extracted content. Title comes
// from the panel discovery; PageTitle is what the detail page itself
// displays, when it displays one.
type Announcement struct {
	detect.Reference

	Title       string
	PageTitle   string
	Body        string
	Attachments []string
	ExtractedAt time.Time

	// Partial marks a title-only announcement. Still deliverable — some
	// announcements genuinely have no body.
	Partial bool
}

// Error is a per-reference extraction failure. It never aborts a run: the
// reference is skipped, stays out of the seen-set and is retried on the
// next scheduled run.
type Error struct {
	Identity string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Identity, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

var errNoContent = errors.New("no content region matched")

// Extractor reads detail-page snapshots.
type Extractor struct {
	log    *slog.Logger
	conv   *converter.Converter
	policy *bluemonday.Policy
}

// New creates an Extractor.
func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		log: log,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// FromSnapshot extracts the announcement behind ref from its rendered
// detail page. A page exposing no title and no recoverable content fails
// with *Error; a page with a title but an empty body is a valid partial
// extraction.
func (ex *Extractor) FromSnapshot(snap *surface.Snapshot, ref detect.Reference) (Announcement, error) {
	ann := Announcement{
		Reference:   ref,
		Title:       surface.CleanText(ref.RawTitle),
		ExtractedAt: time.Now(),
	}

	ann.PageTitle = findPageTitle(snap)

	region, sel := findContentRegion(snap)
	var attachments []string
	if region.Exists() {
		ex.log.Debug("extract: content region", "identity", ref.Identity, "selector", sel)
		lines := region.Lines()
		ann.Body, attachments = sliceBody(lines)
		if ann.Body == "" {
			// No "Mesaj" label, so the region itself is the message.
			// Markdown conversion keeps link targets that plain text
			// rendering drops.
			ann.Body = ex.renderMarkup(region.InnerHTML(), snap.URL)
		}
		if ann.Body == "" {
			ann.Body = dropMetadata(lines)
		}
	}

	if tooShort(ann.Body) {
		ex.log.Debug("extract: falling back to whole document", "identity", ref.Identity)
		if body := sliceBodyStrict(documentLines(snap)); body != "" {
			ann.Body = body
		}
	}

	if tooShort(ann.Body) {
		// Readability output below the same threshold is navigation
		// chrome, not a recovered article.
		if body := ex.readabilityText(snap); !tooShort(body) {
			ex.log.Debug("extract: readability recovery", "identity", ref.Identity)
			ann.Body = body
		}
	}

	ann.Body = capRunes(ann.Body, maxBodyRunes)

	if len(attachments) == 0 {
		attachments = findAttachmentLinks(snap)
	}
	ann.Attachments = attachments
	ann.Partial = ann.Body == ""

	if !region.Exists() && ann.PageTitle == "" && ann.Body == "" {
		return ann, &Error{Identity: ref.Identity, Cause: errNoContent}
	}
	return ann, nil
}

// FromReference builds a title-only announcement for a reference with no
// reachable detail view. The panel title is all we have; it is still
// worth delivering.
func (ex *Extractor) FromReference(ref detect.Reference) Announcement {
	return Announcement{
		Reference:   ref,
		Title:       surface.CleanText(ref.RawTitle),
		ExtractedAt: time.Now(),
		Partial:     true,
	}
}

// renderMarkup sanitizes a markup fragment and converts it to markdown
// text. Empty string when nothing useful survives.
func (ex *Extractor) renderMarkup(rawHTML, pageURL string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	clean := ex.policy.Sanitize(rawHTML)
	md, err := ex.conv.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return ""
	}
	return strings.TrimSpace(md)
}

// readabilityText is the last resort: run the readability heuristics over
// the full document and keep whatever article text they find.
func (ex *Extractor) readabilityText(snap *surface.Snapshot) string {
	if snap.URL == "" {
		return ""
	}
	pageURL, err := url.Parse(snap.URL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(snap.HTML()), pageURL)
	if err != nil {
		return ""
	}
	return normalizeLines(article.TextContent)
}

// normalizeLines cleans multi-line text while keeping its line structure.
func normalizeLines(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = surface.CleanText(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func tooShort(body string) bool {
	return len([]rune(body)) < 10
}

func capRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
