// Package portal drives the Sakai session: landing page, login, the
// alerts panel and announcement detail pages.
//
// Every page is captured as a surface snapshot as soon as it settles;
// detection and extraction run on parsed HTML, never against the live
// browser.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/bullhorn/internal/surface"
)

// ErrLoginFailed is returned when the portal cannot be brought to a
// logged-in state.
var ErrLoginFailed = errors.New("portal: login failed")

// ErrPanelUnavailable is returned when the alerts panel cannot be opened.
var ErrPanelUnavailable = errors.New("portal: alerts panel unavailable")

// bullhornSelector is the notification icon in the portal header. Its
// presence doubles as the logged-in probe.
const bullhornSelector = "#Mrphs-bullhorn"

// The panel and detail views render asynchronously after interaction.
const settleDelay = 2 * time.Second

var usernameSelectors = []string{
	`input[name="eid"]`, `input[name="username"]`,
	"#eid", "#username",
	`input[name="j_username"]`, "#j_username",
}

var passwordSelectors = []string{
	`input[name="pw"]`, `input[name="password"]`,
	"#pw", "#password",
	`input[name="j_password"]`, "#j_password",
}

// Pager opens browser tabs. Satisfied by *browser.Session.
type Pager interface {
	NewPage(ctx context.Context) (*rod.Page, error)
}

// Config locates the portal and its credentials.
type Config struct {
	URL            string
	Username       string
	Password       string
	PageTimeout    time.Duration
	ElementTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.PageTimeout <= 0 {
		c.PageTimeout = 10 * time.Second
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 15 * time.Second
	}
}

// Portal is one Sakai session. Home must be called before OpenAlerts.
type Portal struct {
	cfg   Config
	log   *slog.Logger
	pager Pager
	page  *rod.Page
}

// New creates a Portal on top of a browser session.
func New(cfg Config, pager Pager, log *slog.Logger) *Portal {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Portal{cfg: cfg, log: log, pager: pager}
}

// Home opens the portal landing page and ensures the session is logged
// in, authenticating with the configured credentials when it is not.
func (p *Portal) Home(ctx context.Context) (*surface.Snapshot, error) {
	page, err := p.pager.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	p.page = page

	if err := p.navigate(ctx, page, p.cfg.URL); err != nil {
		return nil, err
	}

	loggedIn, _, err := page.Has(bullhornSelector)
	if err != nil {
		return nil, fmt.Errorf("portal: probe header: %w", err)
	}
	if loggedIn {
		p.log.Info("portal: already logged in")
	} else {
		if p.cfg.Username == "" || p.cfg.Password == "" {
			return nil, fmt.Errorf("%w: not logged in and no credentials configured", ErrLoginFailed)
		}
		p.log.Info("portal: attempting login", "user", p.cfg.Username)
		if err := p.login(ctx); err != nil {
			return nil, err
		}
		p.log.Info("portal: login successful")
	}

	return p.capture(ctx, page)
}

// OpenAlerts clicks the notification icon and captures the document with
// the panel rendered. The badge count is read from the snapshot later.
func (p *Portal) OpenAlerts(ctx context.Context) (*surface.Snapshot, error) {
	if p.page == nil {
		return nil, fmt.Errorf("%w: no session, call Home first", ErrPanelUnavailable)
	}
	page := p.page.Context(ctx)

	has, bullhorn, err := page.Has(bullhornSelector)
	if err != nil || !has {
		return nil, fmt.Errorf("%w: header icon not found", ErrPanelUnavailable)
	}

	// Scripted click: the icon sits under the sticky header and native
	// clicks land on the overlay.
	if _, err := bullhorn.Eval(`() => this.click()`); err != nil {
		if cerr := bullhorn.Click(proto.InputMouseButtonLeft, 1); cerr != nil {
			return nil, fmt.Errorf("%w: click: %v", ErrPanelUnavailable, cerr)
		}
	}
	p.settle(ctx)

	return p.capture(ctx, page)
}

// Detail opens an announcement detail page in its own tab, captures it
// and closes the tab.
func (p *Portal) Detail(ctx context.Context, href string) (*surface.Snapshot, error) {
	page, err := p.pager.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			p.log.Warn("portal: close detail tab", "err", err)
		}
	}()

	if err := p.navigate(ctx, page, href); err != nil {
		return nil, err
	}
	p.settle(ctx)

	return p.capture(ctx, page)
}

// Close releases the home tab. The browser session is owned by the
// caller.
func (p *Portal) Close() {
	if p.page != nil {
		if err := p.page.Close(); err != nil {
			p.log.Warn("portal: close home tab", "err", err)
		}
		p.page = nil
	}
}

func (p *Portal) login(ctx context.Context) error {
	page := p.page.Context(ctx)

	doc := page
	user := findFirst(doc, usernameSelectors)
	pass := findFirst(doc, passwordSelectors)

	if user == nil || pass == nil {
		// Some skins render the login form inside an iframe.
		frames, err := page.Elements("iframe")
		if err == nil {
			for _, f := range frames {
				frame, err := f.Frame()
				if err != nil {
					continue
				}
				u := findFirst(frame, usernameSelectors)
				pw := findFirst(frame, passwordSelectors)
				if u != nil && pw != nil {
					doc, user, pass = frame, u, pw
					p.log.Debug("portal: login form found in iframe")
					break
				}
			}
		}
	}
	if user == nil || pass == nil {
		return fmt.Errorf("%w: no login form found", ErrLoginFailed)
	}

	if err := fill(user, p.cfg.Username); err != nil {
		return fmt.Errorf("%w: username field: %v", ErrLoginFailed, err)
	}
	if err := fill(pass, p.cfg.Password); err != nil {
		return fmt.Errorf("%w: password field: %v", ErrLoginFailed, err)
	}

	if err := p.submit(doc, pass); err != nil {
		return err
	}

	// The header icon appearing is the success signal.
	if _, err := p.page.Timeout(p.cfg.ElementTimeout).Element(bullhornSelector); err != nil {
		return fmt.Errorf("%w: portal header did not appear", ErrLoginFailed)
	}
	return nil
}

func (p *Portal) submit(doc *rod.Page, pass *rod.Element) error {
	button := findFirst(doc, []string{`input[type="submit"]`, `button[type="submit"]`})
	if button == nil {
		button = buttonByLabel(doc, "Giriş", "Login")
	}
	if button == nil {
		// No recognisable button; submit the form from the password
		// field instead.
		if err := pass.Type(input.Enter); err != nil {
			return fmt.Errorf("%w: submit: %v", ErrLoginFailed, err)
		}
		return nil
	}
	if _, err := button.Eval(`() => this.click()`); err != nil {
		if cerr := button.Click(proto.InputMouseButtonLeft, 1); cerr != nil {
			return fmt.Errorf("%w: submit click: %v", ErrLoginFailed, cerr)
		}
	}
	return nil
}

func (p *Portal) navigate(ctx context.Context, page *rod.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.PageTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("portal: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		p.log.Warn("portal: wait load timeout", "url", url, "err", err)
	}
	return nil
}

// capture snapshots the page's rendered DOM.
func (p *Portal) capture(ctx context.Context, page *rod.Page) (*surface.Snapshot, error) {
	res, err := page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("portal: read DOM: %w", err)
	}
	pageURL := p.cfg.URL
	if info, err := page.Info(); err == nil && info.URL != "" {
		pageURL = info.URL
	}
	return surface.Parse(res.Value.Str(), pageURL)
}

func (p *Portal) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(settleDelay):
	}
}

func findFirst(doc *rod.Page, selectors []string) *rod.Element {
	for _, sel := range selectors {
		if has, el, err := doc.Has(sel); err == nil && has {
			return el
		}
	}
	return nil
}

func buttonByLabel(doc *rod.Page, labels ...string) *rod.Element {
	buttons, err := doc.Elements("button")
	if err != nil {
		return nil
	}
	for _, b := range buttons {
		text, err := b.Text()
		if err != nil {
			continue
		}
		for _, label := range labels {
			if strings.Contains(text, label) {
				return b
			}
		}
	}
	return nil
}

func fill(el *rod.Element, text string) error {
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}
