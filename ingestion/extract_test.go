package ingestion

import (
	"errors"
	"strings"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		want DocumentFormat
	}{
		{name: "notes.txt", want: FormatText},
		{name: "README.md", want: FormatMarkdown},
		{name: "guide.MARKDOWN", want: FormatMarkdown},
		{name: "report.PDF", want: FormatPDF},
		{name: "table.csv", want: FormatCSV},
		{name: "image.png", want: FormatUnknown},
		{name: "noextension", want: FormatUnknown},
	}

	for _, tc := range cases {
		if got := DetectFormat(tc.name); got != tc.want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractRejectsOversizedPayloadBeforeParsing(t *testing.T) {
	payload := Payload{Name: "big.txt", Data: make([]byte, 100)}

	_, err := Extract(payload, 50)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	payload := Payload{Name: "image.png", Data: []byte{0x89, 0x50}}

	_, err := Extract(payload, 0)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractTextNormalizesLineEndings(t *testing.T) {
	payload := Payload{Name: "notes.txt", Data: []byte("line one  \r\nline two\rline three\t\n")}

	text, err := Extract(payload, 0)
	if err != nil {
		t.Fatal(err)
	}

	if strings.ContainsAny(text, "\r") {
		t.Fatal("extracted text must not contain carriage returns")
	}
	if !strings.Contains(text, "line one\nline two\nline three") {
		t.Fatalf("unexpected normalization result: %q", text)
	}
}

func TestExtractCSVFormatsRows(t *testing.T) {
	data := []byte("Name,Role\nAlice,Engineer\nBob,Designer\n")

	text, err := Extract(Payload{Name: "team.csv", Data: data}, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"Row 1.", "Name: Alice", "Role: Engineer", "Row 2.", "Name: Bob"} {
		if !strings.Contains(text, want) {
			t.Fatalf("csv text missing %q:\n%s", want, text)
		}
	}
}

func TestExtractCSVRaggedRows(t *testing.T) {
	data := []byte("A,B,C\n1,2\n")

	text, err := Extract(Payload{Name: "ragged.csv", Data: data}, 0)
	if err != nil {
		t.Fatalf("ragged csv must still extract: %v", err)
	}
	if !strings.Contains(text, "A: 1") {
		t.Fatalf("unexpected ragged csv output: %q", text)
	}
}

func TestExtractInvalidPDF(t *testing.T) {
	_, err := Extract(Payload{Name: "broken.pdf", Data: []byte("not a pdf")}, 0)
	if err == nil {
		t.Fatal("expected error for invalid pdf payload")
	}
	if errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrTooLarge) {
		t.Fatalf("pdf parse failure must be its own error, got %v", err)
	}
}
