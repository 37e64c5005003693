package decode

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nwaples/rardecode"
)

// ErrArchiveLimitExceeded aborts expansion when the cumulative extracted
// size or file count crosses the session budget.
var ErrArchiveLimitExceeded = errors.New("archive expansion limit exceeded")

func decodeZIP(dc *Context, data []byte) (RowSource, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid ZIP archive: %w", err)
	}

	extractDir, err := newExtractDir(dc)
	if err != nil {
		return nil, err
	}

	var extracted []string
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			continue
		}
		path, err := extractEntry(dc, extractDir, entry.Name, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		extracted = append(extracted, path)
	}
	return dispatchExtracted(dc, extracted)
}

func decodeRAR(dc *Context, data []byte) (RowSource, error) {
	reader, err := rardecode.NewReader(bytes.NewReader(data), "")
	if err != nil {
		return nil, fmt.Errorf("invalid RAR archive: %w", err)
	}

	extractDir, err := newExtractDir(dc)
	if err != nil {
		return nil, err
	}

	var extracted []string
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid RAR archive: %w", err)
		}
		if header.IsDir {
			continue
		}
		path, err := extractEntry(dc, extractDir, header.Name, reader)
		if err != nil {
			return nil, err
		}
		extracted = append(extracted, path)
	}
	return dispatchExtracted(dc, extracted)
}

func newExtractDir(dc *Context) (string, error) {
	if dc == nil || dc.TempDir == "" {
		return "", errors.New("archive expansion requires a decode context with a temp dir")
	}
	dir := filepath.Join(dc.TempDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// extractEntry copies one archive entry into the session temp dir while
// charging the expansion budget. Entry names are flattened to their base
// name; traversal segments in crafted archives never escape the dir.
func extractEntry(dc *Context, extractDir, name string, r io.Reader) (string, error) {
	dc.expandedFiles++
	if dc.expandedFiles > dc.MaxArchiveFiles {
		return "", ErrArchiveLimitExceeded
	}

	remaining := dc.MaxArchiveBytes - dc.expandedBytes
	if remaining <= 0 {
		return "", ErrArchiveLimitExceeded
	}

	path := filepath.Join(extractDir, fmt.Sprintf("%d_%s", dc.expandedFiles, filepath.Base(name)))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	written, err := io.Copy(out, io.LimitReader(r, remaining+1))
	closeErr := out.Close()
	if err != nil {
		return "", err
	}
	if closeErr != nil {
		return "", closeErr
	}

	dc.expandedBytes += written
	if written > remaining {
		return "", ErrArchiveLimitExceeded
	}
	return path, nil
}

// dispatchExtracted re-dispatches every extracted file through the decoder
// table and splices the resulting sequences in entry order. Entries that
// fail to classify or decode are skipped; a corrupt member does not sink
// the archive. Nested archives recurse up to MaxArchiveDepth.
func dispatchExtracted(dc *Context, paths []string) (RowSource, error) {
	var sources []RowSource
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		format, err := DetectFormat(path, data)
		if err != nil {
			continue
		}
		if format == FormatZIP || format == FormatRAR {
			if dc.depth+1 >= dc.MaxArchiveDepth {
				continue
			}
			dc.depth++
			src, err := Decode(dc, format, data)
			dc.depth--
			if err != nil {
				if errors.Is(err, ErrArchiveLimitExceeded) {
					return nil, err
				}
				continue
			}
			sources = append(sources, src)
			continue
		}
		src, err := Decode(dc, format, data)
		if err != nil {
			continue
		}
		sources = append(sources, relabelSource(src, filepath.Base(path)))
	}
	return newMultiSource(sources), nil
}

// ArchiveEntryColumn records which archive member a row came from.
const ArchiveEntryColumn = "_archive_entry"

func relabelSource(src RowSource, entry string) RowSource {
	// Strip the uniquifying prefix added by extractEntry.
	if i := strings.Index(entry, "_"); i >= 0 {
		entry = entry[i+1:]
	}
	return &labeledSource{src: src, entry: entry}
}

type labeledSource struct {
	src   RowSource
	entry string
}

func (l *labeledSource) Next() (*Row, error) {
	row, err := l.src.Next()
	if err != nil {
		return nil, err
	}
	row.Set(ArchiveEntryColumn, l.entry)
	return row, nil
}
