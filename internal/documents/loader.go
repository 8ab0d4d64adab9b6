package documents

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Unit is a contiguous piece of extracted text. Units concatenate, in order,
// to the full document text. Page is zero-based and nil for formats without
// page boundaries.
type Unit struct {
	Text string
	Page *int
}

// Loader extracts text units from a document's raw bytes.
type Loader interface {
	Load(filename string, data []byte) ([]Unit, error)
}

// LoadError reports a document that could not be loaded.
type LoadError struct {
	Filename string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Filename, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Registry dispatches to a Loader by file extension. Adding a format means
// registering a new Loader, callers are unchanged.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry creates a registry with all supported formats registered.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	fitzLoader := &FitzLoader{}
	r.Register(".pdf", fitzLoader)
	r.Register(".epub", fitzLoader)
	r.Register(".docx", &DocxLoader{})
	r.Register(".html", &HTMLLoader{})
	r.Register(".htm", &HTMLLoader{})
	r.Register(".csv", &CSVLoader{})
	r.Register(".txt", &TextLoader{})
	r.Register(".md", &TextLoader{})
	return r
}

// Register associates a file extension (including the dot) with a loader.
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[strings.ToLower(ext)] = l
}

// Load picks the loader for the filename's extension and runs it.
func (r *Registry) Load(filename string, data []byte) ([]Unit, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	l, ok := r.loaders[ext]
	if !ok {
		return nil, &LoadError{Filename: filename, Err: fmt.Errorf("unsupported file type %q", ext)}
	}
	units, err := l.Load(filename, data)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, &LoadError{Filename: filename, Err: fmt.Errorf("no text content extracted")}
	}
	return units, nil
}

// FitzLoader extracts per-page text from PDF and EPUB files using go-fitz.
type FitzLoader struct{}

// Load returns one unit per page, zero-based.
func (l *FitzLoader) Load(filename string, data []byte) ([]Unit, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, &LoadError{Filename: filename, Err: fmt.Errorf("failed to open document: %w", err)}
	}
	defer doc.Close()

	var units []Unit
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, &LoadError{Filename: filename, Err: fmt.Errorf("failed to read page %d: %w", i, err)}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		page := i
		units = append(units, Unit{Text: text, Page: &page})
	}
	return units, nil
}

// DocxLoader extracts text from DOCX files by reading word/document.xml out
// of the zip archive and stripping markup.
type DocxLoader struct{}

func (l *DocxLoader) Load(filename string, data []byte) ([]Unit, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &LoadError{Filename: filename, Err: fmt.Errorf("failed to open docx as zip: %w", err)}
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, &LoadError{Filename: filename, Err: fmt.Errorf("failed to open document.xml: %w", err)}
		}
		xmlData, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &LoadError{Filename: filename, Err: fmt.Errorf("failed to read document.xml: %w", err)}
		}

		// Paragraph close tags become newlines so paragraphs stay separated
		// once the markup is stripped.
		text := strings.ReplaceAll(string(xmlData), "</w:p>", "\n")
		text = stripTags(text)
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []Unit{{Text: text}}, nil
	}

	return nil, &LoadError{Filename: filename, Err: fmt.Errorf("word/document.xml not found")}
}

// HTMLLoader extracts text from HTML files by removing tags.
type HTMLLoader struct{}

func (l *HTMLLoader) Load(filename string, data []byte) ([]Unit, error) {
	text := stripTags(string(data))
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}

// CSVLoader flattens CSV rows into comma-joined lines.
type CSVLoader struct{}

func (l *CSVLoader) Load(filename string, data []byte) ([]Unit, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &LoadError{Filename: filename, Err: fmt.Errorf("failed to parse csv: %w", err)}
		}
		sb.WriteString(strings.Join(record, ", "))
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return nil, nil
	}
	return []Unit{{Text: sb.String()}}, nil
}

// TextLoader treats the file as plain UTF-8 text.
type TextLoader struct{}

func (l *TextLoader) Load(filename string, data []byte) ([]Unit, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return []Unit{{Text: string(data)}}, nil
}

// stripTags performs basic markup tag removal
func stripTags(markup string) string {
	var result strings.Builder
	inTag := false
	for _, r := range markup {
		if r == '<' {
			inTag = true
			continue
		}
		if r == '>' {
			inTag = false
			result.WriteRune(' ')
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}
	return result.String()
}
