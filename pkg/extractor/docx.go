package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractDOCX pulls paragraph text and the author out of a DOCX
// archive. Paragraphs are joined with single newlines, empty ones
// included, mirroring how word processors delimit them.
func extractDOCX(data []byte) (text, author string, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", fmt.Errorf("open docx: %v", err)
	}

	var found bool
	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			found = true
			text, err = docxParagraphs(f)
			if err != nil {
				return "", "", err
			}
		case "docProps/core.xml":
			author = docxAuthor(f)
		}
	}
	if !found {
		return "", "", errors.New("docx has no word/document.xml")
	}

	return text, author, nil
}

func docxParagraphs(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %v", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)

	var (
		lines   []string
		current strings.Builder
		inText  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				lines = append(lines, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

func docxAuthor(f *zip.File) string {
	rc, err := f.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()

	var core struct {
		Creator string `xml:"creator"`
	}
	if err := xml.NewDecoder(rc).Decode(&core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Creator)
}
