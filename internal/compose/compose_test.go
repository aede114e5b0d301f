package compose

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hazyhaar/bullhorn/internal/extract"
)

func TestRender(t *testing.T) {
	ann := extract.Announcement{
		Title:     "Vize Sınavı",
		PageTitle: "Fizik I: Duyurular",
		Body:      "Sınav 20 Mart'ta yapılacaktır.",
		Attachments: []string{
			"konular.pdf (https://online.deu.edu.tr/access/konular.pdf)",
			"cozumler.pdf (https://online.deu.edu.tr/access/cozumler.pdf)",
		},
	}
	got := Render(ann)
	want := "<b>📢 YENİ DUYURU</b>\n\n<b>Vize Sınavı</b>\n\n" +
		"📌 Fizik I: Duyurular\n\n" +
		"Sınav 20 Mart'ta yapılacaktır.\n\n" +
		"📎 Ekler (2):\n" +
		"1. konular.pdf (https://online.deu.edu.tr/access/konular.pdf)\n" +
		"2. cozumler.pdf (https://online.deu.edu.tr/access/cozumler.pdf)"
	if got.Text != want {
		t.Errorf("text =\n%q\nwant\n%q", got.Text, want)
	}
	if got.Title != "Vize Sınavı" {
		t.Errorf("title = %q", got.Title)
	}
}

// WHAT: extracted text is entity-escaped while the framing tags survive.
// WHY: announcement bodies regularly contain literal angle brackets
// (e-mail addresses, pasted markup) that would otherwise abort the send
// with a Telegram parse error.
func TestRenderEscapes(t *testing.T) {
	ann := extract.Announcement{
		Title: "Soru & Cevap <Bölüm 2>",
		Body:  "Kayıt için <ogrenci@deu.edu.tr> adresine yazınız.",
	}
	got := Render(ann)
	if !strings.Contains(got.Text, "Soru &amp; Cevap &lt;Bölüm 2&gt;") {
		t.Errorf("title not escaped: %q", got.Text)
	}
	if !strings.Contains(got.Text, "&lt;ogrenci@deu.edu.tr&gt;") {
		t.Errorf("body not escaped: %q", got.Text)
	}
	if !strings.HasPrefix(got.Text, "<b>📢 YENİ DUYURU</b>") {
		t.Errorf("framing tags damaged: %q", got.Text)
	}
}

func TestRenderTitleOnly(t *testing.T) {
	got := Render(extract.Announcement{Title: "Bütünleme Sonuçları", Partial: true})
	want := "<b>📢 YENİ DUYURU</b>\n\n<b>Bütünleme Sonuçları</b>\n\nBütünleme Sonuçları"
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
}

func TestRenderAttachmentLimit(t *testing.T) {
	ann := extract.Announcement{Title: "Ders Notları", Body: "Notlar yüklendi."}
	for i := 1; i <= 7; i++ {
		ann.Attachments = append(ann.Attachments, fmt.Sprintf("hafta%d.pdf", i))
	}
	got := Render(ann)
	if !strings.Contains(got.Text, "📎 Ekler (7):") {
		t.Errorf("count should reflect all attachments: %q", got.Text)
	}
	if !strings.Contains(got.Text, "5. hafta5.pdf") {
		t.Errorf("fifth attachment missing: %q", got.Text)
	}
	if strings.Contains(got.Text, "6. hafta6.pdf") {
		t.Errorf("list not truncated: %q", got.Text)
	}
}

func TestRenderClips(t *testing.T) {
	ann := extract.Announcement{
		Title: strings.Repeat("başlık ", 30),
		Body:  strings.Repeat("gövde metni ", 300),
	}
	got := Render(ann)
	if n := utf8.RuneCountInString(got.Title); n != maxTitleRunes {
		t.Errorf("title runes = %d, want %d", n, maxTitleRunes)
	}
	// The payload itself stays within Telegram's 4096-char message limit
	// even after escaping.
	if n := utf8.RuneCountInString(got.Text); n > 4096 {
		t.Errorf("payload runes = %d", n)
	}
}

func TestErrorNotice(t *testing.T) {
	got := ErrorNotice("Failed to fetch announcements", errors.New(`login form not found <timeout>`))
	if got.Title != "BOT ERROR" {
		t.Errorf("title = %q", got.Title)
	}
	if !strings.Contains(got.Text, "<b>BOT ERROR</b>") {
		t.Errorf("missing error heading: %q", got.Text)
	}
	if !strings.Contains(got.Text, "Failed to fetch announcements:\nlogin form not found &lt;timeout&gt;") {
		t.Errorf("cause not carried: %q", got.Text)
	}
}
