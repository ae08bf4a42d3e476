package textprep

import (
	"errors"
	"strings"
	"testing"
)

func TestPrepare_TooShort(t *testing.T) {
	p := New(50)
	_, err := p.Prepare("too short", false)
	if !errors.Is(err, ErrInsufficientText) {
		t.Fatalf("expected ErrInsufficientText, got %v", err)
	}
}

func TestPrepare_NoRedaction(t *testing.T) {
	p := New(20)
	res, err := p.Prepare("Applicants must hold a valid certificate of sponsorship.", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if res.Redacted || res.RedactionCount != 0 {
		t.Errorf("unexpected redaction: %+v", res)
	}
}

func TestNormalize_Mojibake(t *testing.T) {
	got := Normalize("salary of Â£25,600 per year")
	if !strings.Contains(got, "£25,600") {
		t.Errorf("mojibake not repaired: %q", got)
	}
}

func TestNormalize_StripsControlChars(t *testing.T) {
	got := Normalize("hello\x00\x07 world\nnext\tline")
	if strings.ContainsAny(got, "\x00\x07") {
		t.Errorf("control chars survived: %q", got)
	}
	if !strings.Contains(got, "\n") || !strings.Contains(got, "\t") {
		t.Errorf("newline/tab should be preserved: %q", got)
	}
}

func TestNormalize_CollapsesBlankLines(t *testing.T) {
	got := Normalize("a\n\n\n\n\nb")
	if got != "a\n\nb" {
		t.Errorf("got %q", got)
	}
}

func TestRedact_Email(t *testing.T) {
	out, counts := Redact("contact the caseworker at jane.doe@example.gov.uk for details")
	if counts["email"] != 1 {
		t.Fatalf("email count = %d, want 1", counts["email"])
	}
	if strings.Contains(out, "jane.doe") {
		t.Errorf("email survived: %q", out)
	}
	if !strings.Contains(out, "[REDACTED:email]") {
		t.Errorf("missing marker: %q", out)
	}
}

func TestRedact_NationalInsurance(t *testing.T) {
	out, counts := Redact("the applicant QQ 12 34 56 C previously held leave")
	if counts["national_insurance"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if strings.Contains(out, "QQ 12 34 56 C") {
		t.Errorf("NI number survived: %q", out)
	}
}

func TestRedact_DateOfBirth(t *testing.T) {
	out, counts := Redact("applicant born: 12/03/1985 in London")
	if counts["date_of_birth"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if strings.Contains(out, "12/03/1985") {
		t.Errorf("DOB survived: %q", out)
	}
}

func TestRedact_LeavesSalaryFiguresAlone(t *testing.T) {
	out, counts := Redact("the role must pay at least £25,600 salary per year")
	if len(counts) != 0 {
		t.Fatalf("unexpected redactions: %v", counts)
	}
	if !strings.Contains(out, "£25,600") {
		t.Errorf("salary figure mangled: %q", out)
	}
}

func TestPrepare_RedactionCountsRollUp(t *testing.T) {
	p := New(20)
	text := "Write to a.b@example.com or c.d@example.com about sponsorship requirements."
	res, err := p.Prepare(text, true)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !res.Redacted || res.RedactionCount != 2 || res.RedactionCounts["email"] != 2 {
		t.Errorf("got %+v", res)
	}
}
