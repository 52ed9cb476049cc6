// Package extract pulls plain text out of uploaded intake documents.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText     = "text/plain"
	MimeCSV      = "text/csv"
	MimeMarkdown = "text/markdown"

	// MaxTextBytes caps extracted text; anything past it is dropped.
	MaxTextBytes = 4 << 20
)

// ErrUnsupported is returned for payloads that are not PDF, DOCX or UTF-8 text.
var ErrUnsupported = errors.New("unsupported document type")

// Text extracts text from an in-memory document. An empty or generic content type is resolved
// from the file extension, then by sniffing the bytes. PDFs are read page by page and ctx is
// checked between pages.
func Text(ctx context.Context, data []byte, contentType, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := DetectType(contentType, fileName, data)
	switch kind {
	case MimePDF:
		return pdfText(ctx, data)
	case MimeDOCX:
		return docxText(data)
	case MimeText, MimeCSV, MimeMarkdown:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid utf-8", ErrUnsupported, kind)
		}
		return capText(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
}

// DetectType normalizes contentType, falling back to the extension and content sniffing. Zip
// archives that contain a Word document are reported as DOCX.
func DetectType(contentType, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if clean == "" || clean == "application/octet-stream" {
		if byExt := typeFromExt(fileName); byExt != "" {
			return byExt
		}
		clean = strings.Split(http.DetectContentType(data), ";")[0]
	}
	if clean == "application/zip" && isDOCX(data) {
		return MimeDOCX
	}
	return clean
}

func pdfText(ctx context.Context, data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	fonts := make(map[string]*pdf.Font)
	var buf strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if buf.Len() > 0 && text != "" {
			buf.WriteString("\n")
		}
		buf.WriteString(text)
		if buf.Len() >= MaxTextBytes {
			break
		}
	}
	return capText(buf.String()), nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	doc := findEntry(zr, "word/document.xml")
	if doc == nil {
		return "", fmt.Errorf("%w: docx without word/document.xml", ErrUnsupported)
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()
	return paragraphs(io.LimitReader(rc, 8*MaxTextBytes))
}

// paragraphs concatenates character data, one line per paragraph or line break.
func paragraphs(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && buf.Len() > 0 {
				buf.WriteString("\n")
			}
		}
	}
	return capText(strings.TrimSpace(buf.String())), nil
}

func isDOCX(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	return findEntry(zr, "word/document.xml") != nil
}

func findEntry(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == name {
			return f
		}
	}
	return nil
}

func typeFromExt(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	case ".txt", ".text":
		return MimeText
	case ".csv":
		return MimeCSV
	case ".md", ".markdown":
		return MimeMarkdown
	default:
		return ""
	}
}

func capText(s string) string {
	if len(s) <= MaxTextBytes {
		return s
	}
	s = s[:MaxTextBytes]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
