// Package ingest turns uploaded files into text plus the metadata the
// extraction pipeline needs: document type, structure, token count and
// top keywords.
package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/pkoukk/tiktoken-go"
	"github.com/sirupsen/logrus"

	"github.com/athapong/docflow/pkg/extraction"
)

// mimeTypes maps supported file extensions to content types.
var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".html": "text/html",
	".htm":  "text/html",
}

// UnsupportedFormatError is returned for file types the ingester
// cannot read.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Extension)
}

// Metadata is everything the ingester learns about a file before the
// LLM sees it.
type Metadata struct {
	RawText       string                   `json:"raw_text"`
	RawTextLength int                      `json:"raw_text_length"`
	DocumentType  extraction.DocumentType  `json:"document_type"`
	StructureType extraction.StructureType `json:"structure_type"`
	Filename      string                   `json:"filename"`
	FileSize      int                      `json:"file_size"`
	ContentType   string                   `json:"content_type"`
	TokenCount    int                      `json:"token_count"`
	Title         string                   `json:"title,omitempty"`
	Keywords      []Keyword                `json:"keywords,omitempty"`
}

// Extractor reads supported file formats into plain text and derives
// document metadata.
type Extractor struct {
	logger *logrus.Logger
}

// NewExtractor creates a metadata extractor.
func NewExtractor() *Extractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Extractor{logger: logger}
}

// ContentType maps a filename to its MIME type, defaulting to
// application/octet-stream.
func ContentType(filename string) string {
	if ct, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SupportedExtension reports whether the ingester can read the file.
func SupportedExtension(filename string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ExtractText pulls plain text out of a file based on its extension.
func (e *Extractor) ExtractText(content []byte, filename string) (string, error) {
	extension := strings.ToLower(filepath.Ext(filename))

	switch extension {
	case ".pdf":
		return e.extractPDF(content)
	case ".txt", ".md":
		return string(content), nil
	case ".html", ".htm":
		return e.extractHTML(content)
	default:
		return "", &UnsupportedFormatError{Extension: extension}
	}
}

func (e *Extractor) extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		e.logger.WithError(err).Error("Failed to open PDF")
		return "", err
	}

	var parts []string
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		parts = append(parts, text)
	}

	return strings.Join(parts, "\n"), nil
}

// extractHTML converts markup to markdown so section headings survive
// into structure detection. Falls back to stripped body text when
// conversion fails.
func (e *Extractor) extractHTML(content []byte) (string, error) {
	md, err := htmltomarkdown.ConvertString(string(content))
	if err == nil {
		return md, nil
	}
	e.logger.WithError(err).Warn("Markdown conversion failed, falling back to body text")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML content: %w", err)
	}
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

// htmlTitle reads the document title, empty for non-HTML input.
func htmlTitle(content []byte, filename string) string {
	extension := strings.ToLower(filepath.Ext(filename))
	if extension != ".html" && extension != ".htm" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// CountTokens estimates the prompt cost of text with the cl100k_base
// encoding. Returns 0 when the encoding is unavailable.
func CountTokens(text string) int {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return 0
	}
	return len(encoding.Encode(text, nil, nil))
}

// Extract reads a file and derives its full ingestion metadata.
func (e *Extractor) Extract(content []byte, filename string) (*Metadata, error) {
	text, err := e.ExtractText(content, filename)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		RawText:       text,
		RawTextLength: len(text),
		DocumentType:  DetectDocumentType(text),
		StructureType: DetectStructure(text),
		Filename:      filename,
		FileSize:      len(content),
		ContentType:   ContentType(filename),
		TokenCount:    CountTokens(text),
		Title:         htmlTitle(content, filename),
		Keywords:      ExtractKeywords(text, maxKeywords),
	}

	e.logger.WithFields(logrus.Fields{
		"filename":       filename,
		"document_type":  meta.DocumentType,
		"structure_type": meta.StructureType,
		"text_length":    meta.RawTextLength,
		"token_count":    meta.TokenCount,
	}).Info("Ingested document")

	return meta, nil
}
