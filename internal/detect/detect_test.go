package detect

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/bullhorn/internal/surface"
)

var panelHTML = `<!DOCTYPE html>
<html>
<head><title>DEU Online : Portal</title></head>
<body>
<div id="Mrphs-bullhorn">
	<span id="bullhorn-counter" class="bullhorn-counter-red">2</span>
</div>
<div id="panel">
	<div class="portal-bullhorn-alert">
		<a href="/direct/announcement/msg/111">
			<div class="portal-bullhorn-message">Öğr. Gör. Ak "FIZ102"'de "Lab Telafi Dersi" duyurusunu eklendi</div>
			<div class="portal-bullhorn-time">2 saat önce</div>
		</a>
	</div>
	<ul id="notification-list">
		<li><a href="/portal/directtool/calendar-tool">Takvim sayfası güncellendi bugün</a></li>
		<li><a href="/portal/directtool/ann-777">Yeni duyuru: Proje teslim tarihleri açıklandı</a></li>
	</ul>
</div>
</body>
</html>`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseSnap(t *testing.T, raw string) *surface.Snapshot {
	t.Helper()
	snap, err := surface.Parse(raw, "https://online.deu.edu.tr/portal")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return snap
}

func TestCollectPanel(t *testing.T) {
	d := New(Config{}, discard())
	refs := d.Collect(parseSnap(t, panelHTML), nil)

	if len(refs) != 2 {
		t.Fatalf("refs: got %d (%+v), want 2", len(refs), refs)
	}

	// Alert container wins discovery order and its unquoted title.
	if refs[0].Strategy != "alert-containers" {
		t.Errorf("strategy: got %q, want alert-containers", refs[0].Strategy)
	}
	if refs[0].RawTitle != "Lab Telafi Dersi" {
		t.Errorf("title: got %q, want unquoted announcement title", refs[0].RawTitle)
	}
	if !strings.HasPrefix(refs[0].Identity, "url:") {
		t.Errorf("identity: got %q, want url-derived", refs[0].Identity)
	}
	if refs[0].DetailURL != "https://online.deu.edu.tr/direct/announcement/msg/111" {
		t.Errorf("detail url not resolved: %q", refs[0].DetailURL)
	}

	// The calendar tool entry is menu chrome; only the genuine
	// notification-list item survives.
	if refs[1].RawTitle != "Yeni duyuru: Proje teslim tarihleri açıklandı" {
		t.Errorf("second title: got %q", refs[1].RawTitle)
	}
	for _, r := range refs {
		if strings.Contains(strings.ToLower(r.RawTitle), "takvim") {
			t.Errorf("menu item leaked through the denylist: %q", r.RawTitle)
		}
	}
}

func TestCollectPoolsAcrossStrategies(t *testing.T) {
	// The same announcement reachable through the alert container AND the
	// raw link scan must appear once, under the first strategy.
	d := New(Config{}, discard())
	refs := d.Collect(parseSnap(t, panelHTML), nil)

	seen := map[string]int{}
	for _, r := range refs {
		seen[r.Identity]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("identity %q pooled %d times", id, n)
		}
	}
}

func TestCollectEmptyPanel(t *testing.T) {
	// An empty panel is a valid outcome, not an error.
	raw := `<html><body><div id="Mrphs-bullhorn"></div><div id="panel"></div></body></html>`
	d := New(Config{}, discard())
	refs := d.Collect(parseSnap(t, raw), nil)
	if len(refs) != 0 {
		t.Fatalf("refs: got %d, want 0", len(refs))
	}
}

func TestPageSearchGating(t *testing.T) {
	emptyPanel := parseSnap(t, `<html><body><div id="panel"></div></body></html>`)
	home := parseSnap(t, `<html><body>
	<div><a href="/direct/announcement/msg/900">Bütünleme sınavı duyurusu yayınlandı</a></div>
	</body></html>`)

	off := New(Config{}, discard())
	if refs := off.Collect(emptyPanel, home); len(refs) != 0 {
		t.Fatalf("page search disabled: got %d refs, want 0", len(refs))
	}

	on := New(Config{AllowPageSearch: true}, discard())
	refs := on.Collect(emptyPanel, home)
	if len(refs) != 1 {
		t.Fatalf("page search enabled: got %d refs, want 1", len(refs))
	}
	if refs[0].Strategy != "page-links" {
		t.Errorf("strategy: got %q, want page-links", refs[0].Strategy)
	}
}

func TestCollectCap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<html><body>`)
	for i := 0; i < 5; i++ {
		sb.WriteString(`<div class="portal-bullhorn-alert">
		<a href="/direct/announcement/msg/` + string(rune('a'+i)) + `">
		<div class="portal-bullhorn-message">Duyuru eklendi: konu başlığı ` + string(rune('a'+i)) + `</div></a></div>`)
	}
	sb.WriteString(`</body></html>`)

	d := New(Config{MaxAnnouncements: 2}, discard())
	refs := d.Collect(parseSnap(t, sb.String()), nil)
	if len(refs) != 2 {
		t.Fatalf("cap: got %d refs, want 2", len(refs))
	}
}

func TestCollectSameTitleDistinctURLs(t *testing.T) {
	// Two courses can post identically titled announcements; distinct
	// detail URLs must keep them apart.
	raw := `<html><body>
	<div class="portal-bullhorn-alert">
		<a href="/direct/announcement/msg/1"><div class="portal-bullhorn-message">"MAT101"'de "Ödev Hatırlatması" duyurusunu eklendi</div></a>
	</div>
	<div class="portal-bullhorn-alert">
		<a href="/direct/announcement/msg/2"><div class="portal-bullhorn-message">"FIZ102"'de "Ödev Hatırlatması" duyurusunu eklendi</div></a>
	</div>
	</body></html>`
	d := New(Config{}, discard())
	refs := d.Collect(parseSnap(t, raw), nil)
	if len(refs) != 2 {
		t.Fatalf("refs: got %d, want 2 distinct announcements", len(refs))
	}
	if refs[0].Identity == refs[1].Identity {
		t.Error("identities should differ for distinct URLs")
	}
}

func TestCollectLinklessRediscovery(t *testing.T) {
	// A weaker strategy re-finding an announcement without its href must
	// not mint a second candidate.
	raw := `<html><body>
	<ul id="notification-list">
		<li><a href="/portal/directtool/ann-5">Yeni duyuru: Ara sınav sonuçları</a></li>
	</ul>
	<div class="notification-item">Yeni duyuru: Ara sınav sonuçları</div>
	</body></html>`
	d := New(Config{}, discard())
	refs := d.Collect(parseSnap(t, raw), nil)
	if len(refs) != 1 {
		t.Fatalf("refs: got %d (%+v), want 1", len(refs), refs)
	}
	if refs[0].DetailURL == "" {
		t.Error("the linked discovery should have won")
	}
}

func TestBadgeCount(t *testing.T) {
	cases := []struct {
		name string
		html string
		want int
	}{
		{
			name: "id counter",
			html: `<div id="Mrphs-bullhorn"><span id="bullhorn-counter">7</span></div>`,
			want: 7,
		},
		{
			name: "class counter",
			html: `<div id="Mrphs-bullhorn"><span class="bullhorn-counter-red">12</span></div>`,
			want: 12,
		},
		{
			name: "span scan",
			html: `<div id="Mrphs-bullhorn"><span>(3)</span></div>`,
			want: 3,
		},
		{
			name: "no badge",
			html: `<div id="Mrphs-bullhorn"><span>yeni</span></div>`,
			want: 0,
		},
		{
			name: "no bullhorn",
			html: `<div id="other"></div>`,
			want: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := parseSnap(t, `<html><body>`+tc.html+`</body></html>`)
			if got := BadgeCount(snap); got != tc.want {
				t.Errorf("BadgeCount: got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestUnquoteTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			in:   `Dr. Yılmaz "MAT101"'de "Vize Sınavı" duyurusunu eklendi`,
			want: "Vize Sınavı",
		},
		{
			in:   `"Tek Tırnak" eklendi`,
			want: `"Tek Tırnak" eklendi`, // one quoted segment: ambiguous, keep as-is
		},
		{
			in:   "Düz başlık",
			want: "Düz başlık",
		},
		{
			in:   `"A"'da "B" var ama fiil yok`,
			want: `"A"'da "B" var ama fiil yok`,
		},
	}
	for _, tc := range cases {
		if got := unquoteTitle(tc.in); got != tc.want {
			t.Errorf("unquoteTitle(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIdentity(t *testing.T) {
	a := Identity("https://Online.DEU.edu.tr:443/direct/announcement/msg/9/?b=2&a=1", "x")
	b := Identity("https://online.deu.edu.tr/direct/announcement/msg/9?a=1&b=2#frag", "y")
	if a != b {
		t.Errorf("url identity should normalise: %q != %q", a, b)
	}
	if !strings.HasPrefix(a, "url:") {
		t.Errorf("url identity prefix: %q", a)
	}

	t1 := Identity("", "Vize Sınavı!")
	t2 := Identity("", "vize sınavı")
	if t1 != t2 {
		t.Errorf("title identity should normalise: %q != %q", t1, t2)
	}
	if !strings.HasPrefix(t1, "title:") {
		t.Errorf("title identity prefix: %q", t1)
	}
	if t1 == Identity("", "Final Sınavı") {
		t.Error("different titles should differ")
	}
}

func TestDeniedTerm(t *testing.T) {
	if term := deniedTerm("Takvim sayfası güncellendi"); term != "takvim" {
		t.Errorf("deniedTerm: got %q, want takvim", term)
	}
	if term := deniedTerm("Vize Sınavı"); term != "" {
		t.Errorf("deniedTerm: got %q, want empty", term)
	}
}
