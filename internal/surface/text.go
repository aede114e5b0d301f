package surface

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Text extracts all visible text from the element subtree, space-joined.
// Script, style and noscript subtrees are skipped.
func (n Node) Text() string {
	if n.n == nil {
		return ""
	}
	var sb strings.Builder
	var f func(*html.Node)
	f = func(h *html.Node) {
		if h.Type == html.TextNode {
			text := strings.TrimSpace(h.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if h.Type == html.ElementNode {
			switch h.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n.n)
	return sb.String()
}

// Lines extracts visible text as rendered lines: block-level elements and
// <br> start a new line, inline content stays on the current one. Lines are
// trimmed and empty lines dropped. This mirrors what a browser's innerText
// produces for the portal's label/value layouts, where body slicing depends
// on labels occupying whole lines.
func (n Node) Lines() []string {
	if n.n == nil {
		return nil
	}
	var lines []string
	var cur strings.Builder
	flush := func() {
		if line := CleanText(cur.String()); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}
	var f func(*html.Node)
	f = func(h *html.Node) {
		if h.Type == html.TextNode {
			text := strings.TrimSpace(h.Data)
			if text != "" {
				if cur.Len() > 0 {
					cur.WriteByte(' ')
				}
				cur.WriteString(text)
			}
			return
		}
		if h.Type != html.ElementNode {
			for c := h.FirstChild; c != nil; c = c.NextSibling {
				f(c)
			}
			return
		}
		switch h.DataAtom {
		case atom.Script, atom.Style, atom.Noscript:
			return
		case atom.Br:
			flush()
			return
		}
		block := isBlock(h.DataAtom)
		if block {
			flush()
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
		if block {
			flush()
		}
	}
	f(n.n)
	flush()
	return lines
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Address, atom.Article, atom.Aside, atom.Blockquote,
		atom.Dd, atom.Div, atom.Dl, atom.Dt, atom.Fieldset,
		atom.Figcaption, atom.Figure, atom.Footer, atom.Form,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Header, atom.Hr, atom.Li, atom.Main, atom.Nav,
		atom.Ol, atom.P, atom.Pre, atom.Section, atom.Table,
		atom.Td, atom.Th, atom.Tr, atom.Ul:
		return true
	}
	return false
}

// CleanText normalises visible text for display and comparison.
// It removes zero-width characters, collapses whitespace runs and trims.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '​', '‌', '‍', '﻿', '­':
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(collapseWhitespace(text))
}

// NormaliseTitle prepares a title for identity hashing. More aggressive
// than CleanText: lowercases and strips punctuation so cosmetic edits to a
// title do not mint a new identity.
func NormaliseTitle(text string) string {
	text = CleanText(text)
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)
	return collapseWhitespace(text)
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return multiSpaceRe.ReplaceAllString(s, " ")
}
