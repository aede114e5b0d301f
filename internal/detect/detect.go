// Package detect locates announcement entries inside the portal's rendered
// notification surface.
//
// Sakai skins disagree about the panel markup, so discovery runs an ordered
// table of strategies over one snapshot, pools everything they find and
// deduplicates by identity (first discovery wins). Each strategy is a pure
// function over a surface.Snapshot, testable against fixture HTML.
package detect

import (
	"log/slog"

	"github.com/hazyhaar/bullhorn/internal/surface"
)

// DefaultMaxAnnouncements caps how many references one run may yield.
const DefaultMaxAnnouncements = 20

// Reference points at one announcement discovered on the surface.
// Immutable once minted; Identity is stable across runs for the same
// underlying announcement.
type Reference struct {
	Identity  string
	DetailURL string
	RawTitle  string
	Strategy  string
}

// Config controls discovery.
type Config struct {
	// MaxAnnouncements caps the candidate list per run.
	MaxAnnouncements int
	// AllowPageSearch enables scanning the whole home page when the panel
	// yields nothing. Off by default: whole-page scans produce false
	// positives (course lists, menus).
	AllowPageSearch bool
}

func (c *Config) applyDefaults() {
	if c.MaxAnnouncements <= 0 {
		c.MaxAnnouncements = DefaultMaxAnnouncements
	}
}

// Detector runs the strategy table.
type Detector struct {
	cfg Config
	log *slog.Logger
}

// New creates a Detector.
func New(cfg Config, log *slog.Logger) *Detector {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Detector{cfg: cfg, log: log}
}

// Collect runs every panel strategy over the opened-panel snapshot, pools
// the finds and returns at most MaxAnnouncements references in discovery
// order. An empty result is a valid outcome, not an error; failing to
// obtain the panel snapshot at all is the caller's hard failure.
//
// home may be nil; it is only consulted for the page-search fallback.
func (d *Detector) Collect(panel, home *surface.Snapshot) []Reference {
	if n := BadgeCount(panel); n > 0 {
		d.log.Debug("detect: badge count", "count", n)
	}

	pool := newPool(d.log)
	d.runStrategies(pool, panelStrategies, panel)

	if pool.empty() && home != nil {
		if d.cfg.AllowPageSearch {
			d.log.Info("detect: panel empty, scanning page", "url", home.URL)
			d.runStrategies(pool, pageStrategies, home)
		} else {
			d.log.Info("detect: panel empty, page search disabled")
		}
	}

	refs := pool.refs
	if len(refs) > d.cfg.MaxAnnouncements {
		d.log.Debug("detect: capping candidates",
			"found", len(refs), "cap", d.cfg.MaxAnnouncements)
		refs = refs[:d.cfg.MaxAnnouncements]
	}
	return refs
}

func (d *Detector) runStrategies(pool *pool, table []strategy, snap *surface.Snapshot) {
	for _, st := range table {
		found := st.find(snap)
		if len(found) == 0 {
			continue
		}
		d.log.Debug("detect: strategy matched", "strategy", st.name, "items", len(found))
		for _, c := range found {
			d.admit(pool, st.name, snap, c)
		}
	}
}

// admit applies the per-candidate gates and, when they pass, mints a
// Reference into the pool.
func (d *Detector) admit(p *pool, strategyName string, snap *surface.Snapshot, c candidate) {
	text := surface.CleanText(c.text)
	if len([]rune(text)) < minItemTextLen {
		d.log.Debug("detect: item too short", "strategy", strategyName, "text", text)
		return
	}

	href := ""
	if c.href != "" {
		href = snap.Resolve(c.href)
	}

	if !announcementHref(href) && !hasKeyword(text) {
		d.log.Debug("detect: item not announcement-like",
			"strategy", strategyName, "text", clip(text, 50))
		return
	}

	title := surface.CleanText(c.title)
	if title == "" {
		title = text
	}
	title = unquoteTitle(title)

	if term := deniedTerm(title); term != "" {
		d.log.Debug("detect: menu item dropped", "title", clip(title, 50), "term", term)
		return
	}

	if c.when != "" {
		d.log.Debug("detect: item time", "title", clip(title, 50), "when", c.when)
	}

	p.add(Reference{
		Identity:  Identity(href, title),
		DetailURL: href,
		RawTitle:  title,
		Strategy:  strategyName,
	})
}

// pool deduplicates references while preserving discovery order. Primary
// key is the identity; a secondary title key catches the same announcement
// rediscovered by a weaker strategy that lost the href (url: and title:
// identities never match each other). Two references that BOTH carry URLs
// may share a title — distinct announcements titled alike in different
// courses — so the title key only collapses pairs where one side is
// linkless.
type pool struct {
	refs       []Reference
	index      map[string]int
	titleIndex map[string]int
	log        *slog.Logger
}

func newPool(log *slog.Logger) *pool {
	return &pool{
		index:      make(map[string]int),
		titleIndex: make(map[string]int),
		log:        log,
	}
}

func (p *pool) empty() bool { return len(p.refs) == 0 }

func (p *pool) add(ref Reference) {
	if i, ok := p.index[ref.Identity]; ok {
		p.logDuplicate(p.refs[i], ref)
		return
	}
	tk := titleKey(ref.RawTitle)
	if i, ok := p.titleIndex[tk]; ok {
		if first := p.refs[i]; first.DetailURL == "" || ref.DetailURL == "" {
			p.logDuplicate(first, ref)
			return
		}
	}
	p.index[ref.Identity] = len(p.refs)
	if _, ok := p.titleIndex[tk]; !ok {
		p.titleIndex[tk] = len(p.refs)
	}
	p.refs = append(p.refs, ref)
}

// First discovery wins its title; the discrepancy is only worth a log line.
func (p *pool) logDuplicate(kept, dropped Reference) {
	if kept.RawTitle == dropped.RawTitle {
		return
	}
	p.log.Debug("detect: duplicate candidate, keeping first",
		"identity", kept.Identity,
		"kept", clip(kept.RawTitle, 50),
		"dropped", clip(dropped.RawTitle, 50),
		"strategy", dropped.Strategy)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
