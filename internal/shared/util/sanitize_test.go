package util

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "doc.pdf", want: "doc.pdf"},
		{in: "  notes.txt ", want: "notes.txt"},
		{in: `C:\fakepath\scan.pdf`, want: "C:_fakepath_scan.pdf"},
		{in: "a/b.docx", want: "a_b.docx"},
		{in: "tab\tname.pdf", want: "tabname.pdf"},
		{in: "../etc/passwd", want: ".._etc_passwd"},
		{in: "statement..final.pdf", want: "statement..final.pdf"},
		{in: "Jan...Mar.pdf", want: "Jan...Mar.pdf"},
		{in: "..", wantErr: true},
		{in: "/..", want: "_.."},
		{in: "", wantErr: true},
		{in: "\x00", wantErr: true},
		{in: ".", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SanitizeFileName(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidFileName) {
				t.Fatalf("SanitizeFileName(%q) error = %v, want ErrInvalidFileName", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("SanitizeFileName(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFileNameTruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("é", 150) + ".pdf"
	got, err := SanitizeFileName(long)
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if len(got) > MaxFileNameBytes {
		t.Fatalf("expected at most %d bytes, got %d", MaxFileNameBytes, len(got))
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("expected extension kept, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid utf-8, got %q", got)
	}
}
