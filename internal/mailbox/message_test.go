package mailbox

import (
	"strings"
	"testing"
)

const multipartMessage = "From: Codeur <notification@compte.codeur.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?UTF-8?Q?Nouveau_projet_:_Cr=C3=A9ation_site?=\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain version\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=iso-8859-1\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"<p>Cr=E9ation <a href=3D\"https://www.codeur.com/projects/1-site\">voir</a></p>\r\n" +
	"--b1--\r\n"

func TestParseMultipart(t *testing.T) {
	msg, err := Parse(42, []byte(multipartMessage))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if msg.ID != 42 {
		t.Fatalf("expected id 42, got %d", msg.ID)
	}
	if msg.Sender != "notification@compte.codeur.com" {
		t.Fatalf("unexpected sender: %q", msg.Sender)
	}
	if msg.Subject != "Nouveau projet : Création site" {
		t.Fatalf("unexpected subject: %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Création") {
		t.Fatalf("expected decoded html, got %q", msg.HTML)
	}
	if !strings.Contains(msg.Body(), `href="https://www.codeur.com/projects/1-site"`) {
		t.Fatalf("expected html body to be preferred, got %q", msg.Body())
	}
	if strings.TrimSpace(msg.Text) != "Plain version" {
		t.Fatalf("unexpected text part: %q", msg.Text)
	}
}

func TestParsePlainOnly(t *testing.T) {
	raw := "From: someone@example.com\r\n" +
		"Subject: Hello\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"just text\r\n"

	msg, err := Parse(1, []byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if msg.HTML != "" {
		t.Fatalf("expected no html part, got %q", msg.HTML)
	}
	if strings.TrimSpace(msg.Body()) != "just text" {
		t.Fatalf("expected text fallback, got %q", msg.Body())
	}
	if msg.Subject != "Hello" || msg.Sender != "someone@example.com" {
		t.Fatalf("unexpected headers: %+v", msg)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse(1, []byte("not a header line without colon\r\n\r\n")); err == nil {
		t.Fatalf("expected error for malformed header")
	}
}
