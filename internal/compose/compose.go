// Package compose renders announcements as Telegram HTML messages.
//
// The payload uses Telegram's HTML parse mode for the fixed framing only;
// all extracted text is entity-escaped, so a stray "<" in an announcement
// can never break parsing on Telegram's side.
package compose

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/bullhorn/internal/extract"
)

const (
	header          = "<b>📢 YENİ DUYURU</b>"
	errorTitle      = "BOT ERROR"
	maxTitleRunes   = 100
	maxContentRunes = 2000
	maxAttachments  = 5
)

// Message is a rendered notification. Title is the clipped display title
// kept for logging; Text is the full HTML payload to send.
type Message struct {
	Title string
	Text  string
}

// Render builds the message for one announcement.
func Render(ann extract.Announcement) Message {
	title := ann.Title
	if title == "" {
		title = ann.PageTitle
	}
	title = clipRunes(title, maxTitleRunes)
	content := clipRunes(assembleContent(ann), maxContentRunes)
	return Message{
		Title: title,
		Text:  header + "\n\n<b>" + escapeHTML(title) + "</b>\n\n" + escapeHTML(content),
	}
}

// ErrorNotice renders an operational failure as a message, so the channel
// hears about an outage instead of going silently quiet.
func ErrorNotice(reason string, err error) Message {
	content := reason
	if err != nil {
		content += ":\n" + err.Error()
	}
	content = clipRunes(content, maxContentRunes)
	return Message{
		Title: errorTitle,
		Text:  header + "\n\n<b>" + errorTitle + "</b>\n\n" + escapeHTML(content),
	}
}

// assembleContent lays out page title, body and the attachments section.
// A body-less announcement falls back to its title, which still reads as
// a complete notification.
func assembleContent(ann extract.Announcement) string {
	var b strings.Builder
	if ann.PageTitle != "" {
		b.WriteString("📌 ")
		b.WriteString(ann.PageTitle)
		b.WriteString("\n\n")
	}
	body := ann.Body
	if body == "" {
		body = ann.Title
	}
	b.WriteString(body)
	if len(ann.Attachments) > 0 {
		// The count reflects every attachment found even when the list
		// below is truncated.
		fmt.Fprintf(&b, "\n\n📎 Ekler (%d):\n", len(ann.Attachments))
		for i, att := range ann.Attachments {
			if i == maxAttachments {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(att))
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return b.String()
}

// escapeHTML escapes for Telegram's HTML parse mode. Ampersand goes
// first so existing text is never double-escaped.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, ">", "&gt;")
}

func clipRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
