// Package bullhorn watches a Sakai portal's notification bell and
// forwards newly posted announcements to a Telegram chat, at most once
// each across runs.
//
// A run is one pass of the pipeline: open the portal (logging in when
// needed), click the bullhorn, collect announcement references with the
// detection strategies, read each detail page, drop everything already
// in the durable seen-set, deliver the rest and commit only what was
// actually sent. Scheduling is external; the binary runs once and exits.
package bullhorn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/bullhorn/internal/browser"
	"github.com/hazyhaar/bullhorn/internal/compose"
	"github.com/hazyhaar/bullhorn/internal/config"
	"github.com/hazyhaar/bullhorn/internal/dedup"
	"github.com/hazyhaar/bullhorn/internal/deliver"
	"github.com/hazyhaar/bullhorn/internal/detect"
	"github.com/hazyhaar/bullhorn/internal/extract"
	"github.com/hazyhaar/bullhorn/internal/journal"
	"github.com/hazyhaar/bullhorn/internal/portal"
	"github.com/hazyhaar/bullhorn/internal/seen"
	"github.com/hazyhaar/bullhorn/internal/surface"
	"github.com/hazyhaar/bullhorn/internal/telegram"
)

// Portal is the navigation surface the pipeline reads. Implemented by
// internal/portal over a real browser; tests substitute fixture pages.
type Portal interface {
	Home(ctx context.Context) (*surface.Snapshot, error)
	OpenAlerts(ctx context.Context) (*surface.Snapshot, error)
	Detail(ctx context.Context, href string) (*surface.Snapshot, error)
}

// Messenger is the outbound transport for one rendered message.
type Messenger = deliver.Messenger

// RunRecord is one journalled run, newest-first from History.
type RunRecord = journal.Run

// DeliveryRecord is one journalled send attempt.
type DeliveryRecord = journal.Delivery

// Report summarises one run for logging and the journal.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	BadgeCount int
	Detected   int
	Extracted  int
	Fresh      int
	Delivered  int
	Failed     int
	DryRun     bool
}

// Service is the run orchestrator.
type Service struct {
	config    *Config
	logger    *slog.Logger
	store     *seen.Store
	journal   *journal.Journal
	detector  *detect.Detector
	extractor *extract.Extractor

	portal    Portal    // nil: a real browser session is opened per run
	messenger Messenger // nil: Telegram, built on first use
	dryRun    bool
	now       func() time.Time
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithPortal substitutes the portal implementation. The Service then
// skips browser provisioning entirely.
func WithPortal(p Portal) ServiceOption {
	return func(s *Service) { s.portal = p }
}

// WithMessenger substitutes the outbound transport.
func WithMessenger(m Messenger) ServiceOption {
	return func(s *Service) { s.messenger = m }
}

// WithDryRun makes Run stop after partitioning: nothing is sent and the
// seen-set on disk stays untouched.
func WithDryRun(dry bool) ServiceOption {
	return func(s *Service) { s.dryRun = dry }
}

// New creates a Service. A nil cfg uses the defaults.
func New(cfg *Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		config:  cfg,
		logger:  logger,
		store:   seen.NewStore(cfg.State.Path, logger),
		journal: journal.Open(cfg.Journal.Path, logger),
		detector: detect.New(detect.Config{
			MaxAnnouncements: cfg.Detect.MaxAnnouncements,
			AllowPageSearch:  cfg.Detect.AllowPageSearch,
		}, logger),
		extractor: extract.New(logger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the journal. Browser sessions are per-run and never
// outlive Run.
func (s *Service) Close() error {
	return s.journal.Close()
}

// History returns the most recent journalled runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]RunRecord, error) {
	return s.journal.RecentRuns(ctx, limit)
}

// RunDeliveries returns the send attempts journalled for one run.
func (s *Service) RunDeliveries(ctx context.Context, runID int64) ([]DeliveryRecord, error) {
	return s.journal.RunDeliveries(ctx, runID)
}

// Run executes one pipeline pass. The returned Report is never nil; a
// non-nil error is a hard failure (browser, login, panel, transport
// reachability or persistence) and maps to a non-zero exit.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	rep := &Report{StartedAt: s.now(), DryRun: s.dryRun}
	s.logger.Info("bullhorn: run started",
		"portal", s.config.Portal.URL, "dry_run", s.dryRun)

	set := s.store.Load()

	anns, err := s.collect(ctx, rep)
	if err != nil {
		s.notifyFailure(ctx, "Failed to fetch announcements", err)
		return s.finish(ctx, rep, nil, err)
	}

	fresh := dedup.Partition(anns, set)
	rep.Fresh = len(fresh)
	s.logger.Info("bullhorn: partitioned",
		"extracted", len(anns), "fresh", len(fresh), "seen", set.Len())

	if s.dryRun {
		for _, ann := range fresh {
			s.logger.Info("bullhorn: would deliver",
				"identity", ann.Identity, "title", ann.Title, "partial", ann.Partial)
		}
		return s.finish(ctx, rep, nil, nil)
	}

	var outcomes []deliver.Outcome
	if len(fresh) > 0 {
		msgr, err := s.sender()
		if err != nil {
			// Transport unreachable before anything was attempted: leave
			// the seen-set alone so the whole batch retries next run.
			return s.finish(ctx, rep, nil, err)
		}
		coord := deliver.New(deliver.Config{
			MessageDelay: s.config.Delivery.MessageDelay,
		}, msgr, s.logger)
		outcomes = coord.Deliver(ctx, fresh)
	}

	delivered := make([]extract.Announcement, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Delivered() {
			delivered = append(delivered, o.Announcement)
		} else {
			rep.Failed++
		}
	}
	rep.Delivered = len(delivered)

	if len(delivered) > 0 {
		next := dedup.Commit(delivered, set, s.config.State.MaxRecords, s.now())
		if err := s.store.Save(next); err != nil {
			err = fmt.Errorf("%w: %v", ErrPersistFailed, err)
			s.notifyFailure(ctx, "Unexpected error", err)
			return s.finish(ctx, rep, outcomes, err)
		}
	}

	return s.finish(ctx, rep, outcomes, nil)
}

// collect opens the portal and returns every extractable announcement in
// discovery order, seen or not.
func (s *Service) collect(ctx context.Context, rep *Report) ([]extract.Announcement, error) {
	client, cleanup, err := s.openPortal(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	home, err := client.Home(ctx)
	if err != nil {
		return nil, err
	}
	panel, err := client.OpenAlerts(ctx)
	if err != nil {
		return nil, err
	}
	rep.BadgeCount = detect.BadgeCount(panel)

	refs := s.detector.Collect(panel, home)
	rep.Detected = len(refs)
	s.logger.Info("bullhorn: detected", "count", len(refs), "badge", rep.BadgeCount)

	anns := make([]extract.Announcement, 0, len(refs))
	for _, ref := range refs {
		ann, err := s.extractOne(ctx, client, ref)
		if err != nil {
			// Never committed, so the next run rediscovers and retries it.
			s.logger.Warn("bullhorn: extraction failed",
				"identity", ref.Identity, "err", err)
			continue
		}
		anns = append(anns, ann)
	}
	rep.Extracted = len(anns)
	return anns, nil
}

func (s *Service) extractOne(ctx context.Context, client Portal, ref detect.Reference) (extract.Announcement, error) {
	if ref.DetailURL == "" {
		// Panel-only candidate: the cleaned title is all there is.
		return s.extractor.FromReference(ref), nil
	}
	snap, err := client.Detail(ctx, ref.DetailURL)
	if err != nil {
		return extract.Announcement{}, &extract.Error{Identity: ref.Identity, Cause: err}
	}
	return s.extractor.FromSnapshot(snap, ref)
}

// openPortal returns the injected portal, or provisions a browser and a
// portal client over it together with their teardown.
func (s *Service) openPortal(ctx context.Context) (Portal, func(), error) {
	if s.portal != nil {
		return s.portal, func() {}, nil
	}

	session, err := browser.Start(ctx, browser.Config{
		Headless:     s.config.Browser.Headless(),
		BinPath:      s.config.Browser.BinPath,
		UserAgent:    s.config.Browser.UserAgent,
		WindowWidth:  s.config.Browser.WindowWidth,
		WindowHeight: s.config.Browser.WindowHeight,
	}, s.logger)
	if err != nil {
		return nil, nil, err
	}

	client := portal.New(portal.Config{
		URL:            s.config.Portal.URL,
		Username:       s.config.Portal.Username,
		Password:       s.config.Portal.Password,
		PageTimeout:    s.config.Portal.PageTimeout,
		ElementTimeout: s.config.Portal.ElementTimeout,
	}, session, s.logger)

	cleanup := func() {
		client.Close()
		if err := session.Close(); err != nil {
			s.logger.Warn("bullhorn: browser shutdown", "err", err)
		}
	}
	return client, cleanup, nil
}

// sender returns the outbound messenger, building the Telegram client on
// first use so dry runs never touch the network.
func (s *Service) sender() (Messenger, error) {
	if s.messenger != nil {
		return s.messenger, nil
	}
	m, err := telegram.New(telegram.Config{
		Token:   s.config.Telegram.Token,
		ChatID:  s.config.Telegram.ChatID,
		Timeout: s.config.Telegram.Timeout,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	s.messenger = m
	return m, nil
}

// notifyFailure sends a best-effort BOT ERROR message so the chat knows
// the watcher is unwell. Never affects the run result.
func (s *Service) notifyFailure(ctx context.Context, reason string, cause error) {
	if s.dryRun {
		return
	}
	msgr, err := s.sender()
	if err != nil {
		s.logger.Warn("bullhorn: error notice skipped", "err", err)
		return
	}
	msg := compose.ErrorNotice(reason, cause)
	if err := msgr.Send(ctx, msg.Text); err != nil {
		s.logger.Warn("bullhorn: error notice failed", "err", err)
	}
}

// finish stamps the report, journals the run and logs the summary.
func (s *Service) finish(ctx context.Context, rep *Report, outcomes []deliver.Outcome, runErr error) (*Report, error) {
	rep.FinishedAt = s.now()

	run := journal.Run{
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		BadgeCount: rep.BadgeCount,
		Discovered: rep.Detected,
		Fresh:      rep.Fresh,
		Delivered:  rep.Delivered,
		Failed:     rep.Failed,
		DryRun:     rep.DryRun,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	s.journal.RecordRun(ctx, run, outcomesToDeliveries(outcomes))

	if runErr != nil {
		s.logger.Error("bullhorn: run failed", "err", runErr,
			"detected", rep.Detected, "delivered", rep.Delivered)
		return rep, runErr
	}
	s.logger.Info("bullhorn: run finished",
		"detected", rep.Detected, "fresh", rep.Fresh,
		"delivered", rep.Delivered, "failed", rep.Failed,
		"elapsed", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	return rep, nil
}

func outcomesToDeliveries(outcomes []deliver.Outcome) []journal.Delivery {
	if len(outcomes) == 0 {
		return nil
	}
	ds := make([]journal.Delivery, 0, len(outcomes))
	for _, o := range outcomes {
		d := journal.Delivery{
			Identity:  o.Announcement.Identity,
			Title:     o.Announcement.Title,
			Delivered: o.Delivered(),
			SentAt:    o.SentAt,
		}
		if o.Err != nil {
			d.Error = o.Err.Error()
		}
		ds = append(ds, d)
	}
	return ds
}
