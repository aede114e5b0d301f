package bullhorn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/bullhorn/internal/config"
	"github.com/hazyhaar/bullhorn/internal/surface"
)

const testBase = "https://online.deu.edu.tr/portal"

const homeHTML = `<html><body><div id="Mrphs-bullhorn"></div><div id="content">Ana Sayfa</div></body></html>`

type fakePortal struct {
	homeHTML  string
	panelHTML string
	details   map[string]string
	detailErr map[string]error
	homeErr   error
	panelErr  error
}

func (f *fakePortal) Home(ctx context.Context) (*surface.Snapshot, error) {
	if f.homeErr != nil {
		return nil, f.homeErr
	}
	return surface.Parse(f.homeHTML, testBase)
}

func (f *fakePortal) OpenAlerts(ctx context.Context) (*surface.Snapshot, error) {
	if f.panelErr != nil {
		return nil, f.panelErr
	}
	return surface.Parse(f.panelHTML, testBase)
}

func (f *fakePortal) Detail(ctx context.Context, href string) (*surface.Snapshot, error) {
	if err := f.detailErr[href]; err != nil {
		return nil, err
	}
	raw, ok := f.details[href]
	if !ok {
		return nil, fmt.Errorf("no such page: %s", href)
	}
	return surface.Parse(raw, href)
}

type fakeMessenger struct {
	attempts []string
	fail     func(text string) error
}

func (f *fakeMessenger) Send(ctx context.Context, text string) error {
	f.attempts = append(f.attempts, text)
	if f.fail != nil {
		return f.fail(text)
	}
	return nil
}

func alertEntry(id int, title string) string {
	return fmt.Sprintf(`<div class="portal-bullhorn-alert">
	<a href="/direct/announcement/msg/%d">
		<div class="portal-bullhorn-message">Öğr. Gör. Demir "FIZ102"'de "%s" duyurusunu eklendi</div>
		<div class="portal-bullhorn-time">1 saat önce</div>
	</a>
</div>`, id, title)
}

func panelWith(entries ...string) string {
	return fmt.Sprintf(`<html><body>
<div id="Mrphs-bullhorn"><span id="bullhorn-counter">%d</span></div>
<div id="panel">%s</div>
</body></html>`, len(entries), strings.Join(entries, "\n"))
}

func detailPage(body string) string {
	return `<html><body><div class="announcementBody"><p>` + body + `</p></div></body></html>`
}

func detailURL(id int) string {
	return fmt.Sprintf("https://online.deu.edu.tr/direct/announcement/msg/%d", id)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.State.Path = filepath.Join(dir, "seen.json")
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Delivery.MessageDelay = time.Millisecond
	return cfg
}

func newService(cfg *config.Config, p Portal, m Messenger, opts ...ServiceOption) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	all := append([]ServiceOption{WithPortal(p), WithMessenger(m)}, opts...)
	return New(cfg, logger, all...)
}

func TestRunLifecycleAcrossRuns(t *testing.T) {
	// WHAT: three consecutive runs against a slowly changing portal.
	// WHY: each distinct announcement must reach the chat exactly once,
	// no matter how many runs observe it.
	cfg := testConfig(t)

	entryA := alertEntry(101, "Vize Programı")
	entryB := alertEntry(102, "Ödev Güncellemesi")
	entryC := alertEntry(103, "Telafi Dersi")

	fp := &fakePortal{
		homeHTML:  homeHTML,
		panelHTML: panelWith(entryA, entryB),
		details: map[string]string{
			detailURL(101): detailPage("Vize sınavı 20 Mart Cuma günü saat 10:00'da yapılacaktır."),
			detailURL(102): detailPage("Ödev teslim tarihi 15 Nisan olarak güncellenmiştir."),
			detailURL(103): detailPage("Telafi dersi 22 Mart Pazartesi günü yapılacaktır."),
		},
	}

	// Run 1: both announcements are new.
	m1 := &fakeMessenger{}
	svc := newService(cfg, fp, m1)
	rep, err := svc.Run(context.Background())
	svc.Close()
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}
	if rep.Detected != 2 || rep.Fresh != 2 || rep.Delivered != 2 || rep.Failed != 0 {
		t.Fatalf("run 1 report: %+v", rep)
	}
	if rep.BadgeCount != 2 {
		t.Errorf("run 1 badge: got %d, want 2", rep.BadgeCount)
	}
	if len(m1.attempts) != 2 {
		t.Fatalf("run 1 sends: got %d, want 2", len(m1.attempts))
	}
	if !strings.Contains(m1.attempts[0], "<b>Vize Programı</b>") {
		t.Errorf("first message title: %q", m1.attempts[0])
	}
	if !strings.Contains(m1.attempts[0], "Vize sınavı 20 Mart") {
		t.Errorf("first message body: %q", m1.attempts[0])
	}

	// Run 2: identical portal state. Nothing may be re-sent.
	m2 := &fakeMessenger{}
	svc = newService(cfg, fp, m2)
	rep, err = svc.Run(context.Background())
	svc.Close()
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if rep.Detected != 2 || rep.Fresh != 0 || rep.Delivered != 0 {
		t.Fatalf("run 2 report: %+v", rep)
	}
	if len(m2.attempts) != 0 {
		t.Fatalf("run 2 sends: got %d, want 0", len(m2.attempts))
	}

	// Run 3: a third announcement appears. Only it goes out.
	fp.panelHTML = panelWith(entryA, entryB, entryC)
	m3 := &fakeMessenger{}
	svc = newService(cfg, fp, m3)
	rep, err = svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run 3: %v", err)
	}
	if rep.Detected != 3 || rep.Fresh != 1 || rep.Delivered != 1 {
		t.Fatalf("run 3 report: %+v", rep)
	}
	if len(m3.attempts) != 1 || !strings.Contains(m3.attempts[0], "Telafi Dersi") {
		t.Fatalf("run 3 sends: %v", m3.attempts)
	}

	// The journal kept a row per run, newest first.
	runs, err := svc.History(context.Background(), 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("journal runs: got %d, want 3", len(runs))
	}
	if runs[0].Delivered != 1 || runs[2].Delivered != 2 {
		t.Errorf("journal order: newest %+v, oldest %+v", runs[0], runs[2])
	}
	svc.Close()
}

func TestRunFailedSendRetriedNextRun(t *testing.T) {
	// WHAT: the transport rejects one message; the announcement must stay
	// out of the seen-set and go out on the following run.
	cfg := testConfig(t)

	fp := &fakePortal{
		homeHTML: homeHTML,
		panelHTML: panelWith(
			alertEntry(201, "Sınav Salonları"),
			alertEntry(202, "Proje Konuları"),
		),
		details: map[string]string{
			detailURL(201): detailPage("Sınav salon dağılımı öğrenci portalında yayınlanmıştır."),
			detailURL(202): detailPage("Proje konu seçimleri bu hafta sonuna kadar tamamlanmalıdır."),
		},
	}

	m1 := &fakeMessenger{fail: func(text string) error {
		if strings.Contains(text, "Proje Konuları") {
			return errors.New("telegram: send: 429")
		}
		return nil
	}}
	svc := newService(cfg, fp, m1)
	rep, err := svc.Run(context.Background())
	svc.Close()
	if err != nil {
		t.Fatalf("run 1: %v", err) // a failed send is per-item, never a hard failure
	}
	if rep.Delivered != 1 || rep.Failed != 1 {
		t.Fatalf("run 1 report: %+v", rep)
	}

	m2 := &fakeMessenger{}
	svc = newService(cfg, fp, m2)
	rep, err = svc.Run(context.Background())
	svc.Close()
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if rep.Fresh != 1 || rep.Delivered != 1 {
		t.Fatalf("run 2 report: %+v", rep)
	}
	if len(m2.attempts) != 1 || !strings.Contains(m2.attempts[0], "Proje Konuları") {
		t.Fatalf("run 2 sends: %v", m2.attempts)
	}
}

func TestRunExtractionFailureSkipsAndRetries(t *testing.T) {
	// WHAT: one detail page fails to load; the rest deliver, the broken
	// one stays uncommitted and goes out once the page recovers.
	cfg := testConfig(t)

	fp := &fakePortal{
		homeHTML: homeHTML,
		panelHTML: panelWith(
			alertEntry(401, "Ara Sınav Tarihleri"),
			alertEntry(402, "Bölüm Semineri"),
		),
		details: map[string]string{
			detailURL(401): detailPage("Ara sınav tarihleri bölüm panosunda ilan edilmiştir."),
			detailURL(402): detailPage("Bölüm semineri perşembe günü saat 14:00'te yapılacaktır."),
		},
		detailErr: map[string]error{
			detailURL(402): errors.New("portal: navigate: timeout"),
		},
	}

	m1 := &fakeMessenger{}
	svc := newService(cfg, fp, m1)
	rep, err := svc.Run(context.Background())
	svc.Close()
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}
	if rep.Detected != 2 || rep.Extracted != 1 || rep.Delivered != 1 {
		t.Fatalf("run 1 report: %+v", rep)
	}

	fp.detailErr = nil
	m2 := &fakeMessenger{}
	svc = newService(cfg, fp, m2)
	rep, err = svc.Run(context.Background())
	svc.Close()
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if rep.Delivered != 1 {
		t.Fatalf("run 2 report: %+v", rep)
	}
	if len(m2.attempts) != 1 || !strings.Contains(m2.attempts[0], "Bölüm Semineri") {
		t.Fatalf("run 2 sends: %v", m2.attempts)
	}
}

func TestRunDryRun(t *testing.T) {
	cfg := testConfig(t)

	fp := &fakePortal{
		homeHTML:  homeHTML,
		panelHTML: panelWith(alertEntry(301, "Ek Ders Duyurusu")),
		details: map[string]string{
			detailURL(301): detailPage("Ek ders programı aşağıdaki gibidir, kontrol ediniz."),
		},
	}
	m := &fakeMessenger{}
	svc := newService(cfg, fp, m, WithDryRun(true))
	rep, err := svc.Run(context.Background())
	svc.Close()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Fresh != 1 || rep.Delivered != 0 {
		t.Fatalf("report: %+v", rep)
	}
	if len(m.attempts) != 0 {
		t.Fatalf("dry run sent %d messages", len(m.attempts))
	}
	if _, err := os.Stat(cfg.State.Path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("dry run touched state: %v", err)
	}
}

func TestRunPanelFailureNotifiesChat(t *testing.T) {
	// WHAT: a hard failure aborts the run with its sentinel and posts a
	// BOT ERROR notice so the chat is not silently dark.
	cfg := testConfig(t)

	fp := &fakePortal{
		homeHTML: homeHTML,
		panelErr: fmt.Errorf("%w: header icon not found", ErrPanelUnavailable),
	}
	m := &fakeMessenger{}
	svc := newService(cfg, fp, m)
	_, err := svc.Run(context.Background())
	svc.Close()
	if !errors.Is(err, ErrPanelUnavailable) {
		t.Fatalf("err: %v", err)
	}
	if len(m.attempts) != 1 {
		t.Fatalf("notices: got %d, want 1", len(m.attempts))
	}
	if !strings.Contains(m.attempts[0], "BOT ERROR") ||
		!strings.Contains(m.attempts[0], "Failed to fetch announcements") {
		t.Errorf("notice: %q", m.attempts[0])
	}
	if _, statErr := os.Stat(cfg.State.Path); statErr == nil {
		t.Error("hard failure persisted state")
	}
}
