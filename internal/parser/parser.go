package parser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"pdf-rag/internal/models"
)

const defaultPageNumber = 1

// LoadDirectory reads every file in dir (not recursing) whose extension is listed in
// extensions and returns one Document per page, in file-then-page order.
// Files that cannot be parsed are skipped and returned in the second value.
func LoadDirectory(ctx context.Context, dir string, extensions []string) ([]models.Document, []string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read directory %s: %v", models.ErrLoad, dir, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is not a directory", models.ErrLoad, dir)
	}

	// os.ReadDir returns entries sorted by filename
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to list directory %s: %v", models.ErrLoad, dir, err)
	}

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}

	var (
		docs       []models.Document
		skipped    []string
		candidates int
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if entry.IsDir() || !allowed[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		candidates++

		path := filepath.Join(dir, entry.Name())
		pages, err := ParseFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Skipping unreadable file")
			skipped = append(skipped, path)
			continue
		}
		log.Debug().Str("file", path).Int("pages", len(pages)).Msg("Parsed file")
		docs = append(docs, pages...)
	}

	if candidates == 0 {
		return nil, nil, fmt.Errorf("%w: no %s files found in %s", models.ErrLoad, strings.Join(extensions, "/"), dir)
	}
	if len(skipped) == candidates {
		return nil, skipped, fmt.Errorf("%w: none of the %d files in %s could be read", models.ErrLoad, candidates, dir)
	}
	return docs, skipped, nil
}

// ParseFile extracts the pages of a single file, dispatching on its extension
func ParseFile(filePath string) (docs []models.Document, err error) {
	// malformed files can make the format libraries panic
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("failed to parse %s: %v", filePath, r)
		}
	}()

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return parsePDF(filePath)
	case ".docx":
		return parseDOCX(filePath)
	case ".xlsx":
		return parseXLSX(filePath)
	case ".md":
		return parseMarkdown(filePath)
	case ".txt":
		return parseText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func parsePDF(filePath string) ([]models.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	docs := make([]models.Document, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %v", i, err)
		}
		docs = append(docs, models.Document{
			Content: pageText,
			Source:  filePath,
			Page:    i,
		})
	}
	return docs, nil
}

func parseDOCX(filePath string) ([]models.Document, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content, err := extractDOCXText(r.Editable().GetContent())
	if err != nil {
		return nil, err
	}
	// DOCX has no page numbers
	return []models.Document{{
		Content: content,
		Source:  filePath,
		Page:    defaultPageNumber,
	}}, nil
}

// extractDOCXText keeps the text runs of word/document.xml, one line per paragraph.
// Tabs count only inside a run, the tab stops of paragraph properties are skipped.
func extractDOCXText(xmlContent string) (string, error) {
	d := xml.NewDecoder(strings.NewReader(xmlContent))

	var (
		text     strings.Builder
		line     strings.Builder
		runDepth int
		inText   bool
	)
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("invalid document xml: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "r":
				runDepth++
			case "t":
				inText = runDepth > 0
			case "tab":
				if runDepth > 0 {
					line.WriteString("\t")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				runDepth--
			case "t":
				inText = false
			case "p":
				if line.Len() > 0 {
					text.WriteString(line.String())
					text.WriteString("\n")
					line.Reset()
				}
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	return text.String(), nil
}

func parseXLSX(filePath string) ([]models.Document, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []models.Document
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %v", sheetName, err)
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		// one page per sheet, 1-based
		docs = append(docs, models.Document{
			Content: text.String(),
			Source:  filePath,
			Page:    sheetNum + 1,
		})
	}
	return docs, nil
}

func parseText(filePath string) ([]models.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []models.Document{{
		Content: string(data),
		Source:  filePath,
		Page:    defaultPageNumber,
	}}, nil
}
