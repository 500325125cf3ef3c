package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/siphon/internal/models"
)

// The folder page embeds its listing as an escaped JS string.
var driveBlobPattern = regexp.MustCompile(`window\['_DRIVE_ivd'\]\s*=\s*'([^']+)'`)

const (
	folderMime = "application/vnd.google-apps.folder"
	gdocMime   = "application/vnd.google-apps.document"

	maxFolderDepth  = 10
	maxListingBytes = 20 << 20
)

// PDFTextRunner extracts plain text from PDF bytes. The default shells
// out to pdftotext.
type PDFTextRunner func(ctx context.Context, data []byte) (string, error)

// GDriveConfig holds Drive access settings. BaseURL and DocsURL exist
// so tests can point the extractor at a local server.
type GDriveConfig struct {
	BaseURL  string
	DocsURL  string
	Timeout  time.Duration
	MaxFiles int
	PDFText  PDFTextRunner
}

// GDrive walks a public Google Drive folder anonymously and extracts
// text from the PDF, DOCX, and native Docs files inside it.
type GDrive struct {
	config GDriveConfig
	client *http.Client
}

func NewGDrive() *GDrive {
	return NewGDriveWithConfig(GDriveConfig{})
}

func NewGDriveWithConfig(config GDriveConfig) *GDrive {
	if config.BaseURL == "" {
		config.BaseURL = "https://drive.google.com"
	}
	if config.DocsURL == "" {
		config.DocsURL = "https://docs.google.com"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxFiles == 0 {
		config.MaxFiles = 200
	}
	if config.PDFText == nil {
		config.PDFText = pdftotextRunner
	}

	// The oversized-file confirm flow needs cookies carried across
	// requests.
	jar, _ := cookiejar.New(nil)

	return &GDrive{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Jar:     jar,
		},
	}
}

func (g *GDrive) Name() string { return "gdrive" }

type driveFile struct {
	ID   string
	Name string
	Mime string
}

type driveEntry struct {
	driveFile
	Path string
}

func (g *GDrive) Extract(ctx context.Context, folderURL, instructions string) ([]Unit, error) {
	entries, err := g.walk(ctx, strings.TrimRight(folderURL, "/"), "", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}

	var units []Unit
	for _, entry := range entries {
		if len(units) >= g.config.MaxFiles {
			slog.Warn("Drive folder truncated", "limit", g.config.MaxFiles)
			break
		}

		unit, err := g.extractFile(ctx, entry)
		if err != nil {
			if ctx.Err() != nil {
				return units, ctx.Err()
			}
			slog.Warn("Could not extract Drive file", "file", entry.Path, "error", err)
			continue
		}
		if unit == nil {
			continue // unsupported type
		}
		unit.SourceURL = folderURL
		units = append(units, *unit)
	}

	return units, nil
}

// walk recursively lists the folder tree, carrying the path prefix so
// unit titles read "sub/dir/Name.pdf".
func (g *GDrive) walk(ctx context.Context, folderURL, prefix string, depth int) ([]driveEntry, error) {
	if depth > maxFolderDepth {
		return nil, nil
	}

	files, err := g.listFolder(ctx, folderURL)
	if err != nil {
		return nil, err
	}

	var entries []driveEntry
	for _, f := range files {
		if f.Mime == folderMime {
			child := g.config.BaseURL + "/drive/folders/" + url.PathEscape(f.ID)
			sub, err := g.walk(ctx, child, prefix+f.Name+"/", depth+1)
			if err != nil {
				slog.Warn("Skipping unreadable Drive subfolder", "folder", f.Name, "error", err)
				continue
			}
			entries = append(entries, sub...)
			continue
		}
		entries = append(entries, driveEntry{driveFile: f, Path: prefix + f.Name})
	}
	return entries, nil
}

func (g *GDrive) extractFile(ctx context.Context, entry driveEntry) (*Unit, error) {
	lower := strings.ToLower(entry.Name)
	switch {
	case entry.Mime == "application/pdf" || strings.HasSuffix(lower, ".pdf"):
		data, err := g.fetchBinary(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		text, err := g.config.PDFText(ctx, data)
		if err != nil {
			return nil, err
		}
		return &Unit{
			Title:       entry.Path,
			Content:     text,
			ContentType: contentTypeOr(entry.Mime),
			Author:      "Unknown",
		}, nil

	case strings.HasSuffix(entry.Mime, "wordprocessingml.document") || strings.HasSuffix(lower, ".docx"):
		data, err := g.fetchBinary(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		text, author, err := extractDOCX(data)
		if err != nil {
			return nil, err
		}
		if author == "" {
			author = "Unknown"
		}
		return &Unit{
			Title:       entry.Path,
			Content:     text,
			ContentType: contentTypeOr(entry.Mime),
			Author:      author,
		}, nil

	case entry.Mime == gdocMime:
		text, err := g.exportDoc(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		// Author is not exposed through the anonymous export.
		return &Unit{
			Title:       entry.Path + ".txt",
			Content:     text,
			ContentType: "text/plain",
			Author:      "Unknown",
		}, nil
	}

	return nil, nil
}

func contentTypeOr(mime string) string {
	if mime == "" {
		return "book"
	}
	return mime
}

func (g *GDrive) listFolder(ctx context.Context, folderURL string) ([]driveFile, error) {
	resp, err := g.get(ctx, folderURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list folder: status %d", resp.StatusCode)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("read folder page: %v", err)
	}

	m := driveBlobPattern.FindSubmatch(page)
	if m == nil {
		return nil, errors.New("drive listing blob not found, is the folder public?")
	}

	return parseListing(decodeDriveBlob(string(m[1])))
}

// fetchBinary downloads file bytes through the anonymous endpoint,
// following the confirm token Drive sets on files too big to scan.
func (g *GDrive) fetchBinary(ctx context.Context, id string) ([]byte, error) {
	downloadURL := g.config.BaseURL + "/uc?export=download&id=" + url.QueryEscape(id)

	resp, err := g.get(ctx, downloadURL)
	if err != nil {
		return nil, err
	}

	if token := downloadToken(resp); token != "" {
		resp.Body.Close()
		resp, err = g.get(ctx, downloadURL+"&confirm="+url.QueryEscape(token))
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", id, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func downloadToken(resp *http.Response) string {
	for _, cookie := range resp.Cookies() {
		if strings.HasPrefix(cookie.Name, "download_warning") {
			return cookie.Value
		}
	}
	return ""
}

func (g *GDrive) exportDoc(ctx context.Context, id string) (string, error) {
	exportURL := g.config.DocsURL + "/document/d/" + url.PathEscape(id) + "/export?format=txt"

	resp, err := g.get(ctx, exportURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("export %s: status %d", id, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read export: %v", err)
	}
	return string(data), nil
}

func (g *GDrive) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	return g.client.Do(req)
}

// decodeDriveBlob undoes the JS string escaping around the listing
// JSON: HTML entities first, then \xNN and \uNNNN escapes.
func decodeDriveBlob(raw string) []byte {
	s := html.UnescapeString(raw)

	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}

		switch s[i+1] {
		case 'x':
			if i+3 < len(s) {
				if n, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
					out = append(out, byte(n))
					i += 3
					continue
				}
			}
			out = append(out, c)
		case 'u':
			if i+5 < len(s) {
				if n, err := strconv.ParseUint(s[i+2:i+6], 16, 32); err == nil {
					out = utf8.AppendRune(out, rune(n))
					i += 5
					continue
				}
			}
			out = append(out, c)
		case '\\', '\'', '"', '/':
			out = append(out, s[i+1])
			i++
		case 'n':
			out = append(out, '\n')
			i++
		case 't':
			out = append(out, '\t')
			i++
		case 'r':
			out = append(out, '\r')
			i++
		default:
			out = append(out, c)
		}
	}
	return out
}

// parseListing reads the decoded blob: the first element is a list of
// rows, each row an array with id, name, and mime at fixed positions.
func parseListing(blob []byte) ([]driveFile, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(blob, &outer); err != nil {
		return nil, fmt.Errorf("parse listing: %v", err)
	}
	if len(outer) == 0 {
		return nil, nil
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(outer[0], &rows); err != nil {
		return nil, fmt.Errorf("parse listing rows: %v", err)
	}

	var files []driveFile
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var f driveFile
		if json.Unmarshal(row[0], &f.ID) != nil {
			continue
		}
		if json.Unmarshal(row[2], &f.Name) != nil {
			continue
		}
		if json.Unmarshal(row[5], &f.Mime) != nil {
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

func pdftotextRunner(ctx context.Context, data []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-", "-")
	cmd.Stdin = bytes.NewReader(data)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext: %v", err)
	}
	return out.String(), nil
}
