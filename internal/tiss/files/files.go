// Package files handles TISS source files on disk: uploaded documents, zip
// bundles and directories of XML.
package files

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/farxc/tiss_wrapper/internal/logger"
)

var zipMagic = []byte("PK\x03\x04")

// maxEntrySize caps a single extracted XML.
const maxEntrySize = 256 << 20

type ExtractionResult struct {
	OutputDir string
	Files     []string
	Skipped   int
}

// IsZip reports whether the file starts with the zip local header signature.
func IsZip(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && n < len(zipMagic) {
		return false, nil
	}
	return bytes.Equal(head, zipMagic), nil
}

// ExtractXML unpacks every .xml entry of a zip into destDir. Entries that would
// escape destDir are rejected.
func ExtractXML(zipPath, destDir string, appLogger *logger.Logger) (ExtractionResult, error) {
	const component = "Unzipper"

	appLogger.Debug(component, "Starting extraction: zipPath=%s destDir=%s", zipPath, destDir)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return ExtractionResult{}, fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	r, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		r.Close()
		return ExtractionResult{}, fmt.Errorf("invalid path in zip %s: %w", zipPath, err)
	}
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("failed to open zip file %s: %w", zipPath, err)
	}
	defer r.Close()

	result := ExtractionResult{OutputDir: destDir}
	root := filepath.Clean(destDir) + string(os.PathSeparator)

	for _, f := range r.File {
		filePath := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(filePath, root) {
			appLogger.Error(component, "Invalid file path detected (possible zip slip): file=%s", f.Name)
			return result, fmt.Errorf("invalid path in zip: %s", f.Name)
		}

		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".xml") {
			result.Skipped++
			appLogger.Debug(component, "Skipping non XML entry: file=%s", f.Name)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return result, fmt.Errorf("failed to create %s: %w", filepath.Dir(filePath), err)
		}
		if err := extractEntry(f, filePath); err != nil {
			return result, err
		}
		result.Files = append(result.Files, filePath)
	}

	appLogger.Info(component, "Extraction completed: destDir=%s extractedFiles=%d skippedFiles=%d", destDir, len(result.Files), result.Skipped)
	return result, nil
}

func extractEntry(f *zip.File, filePath string) error {
	destFile, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filePath, err)
	}
	defer destFile.Close()

	zippedFile, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open zipped file %s: %w", f.Name, err)
	}
	defer zippedFile.Close()

	n, err := io.Copy(destFile, io.LimitReader(zippedFile, maxEntrySize+1))
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if n > maxEntrySize {
		return fmt.Errorf("zip entry %s exceeds %d bytes", f.Name, maxEntrySize)
	}
	return nil
}

// SaveSource stores an uploaded document under dir with a random name and
// returns its path.
func SaveSource(dir string, r io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if ext == "" {
		ext = ".xml"
	}

	path := filepath.Join(dir, uuid.NewString()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	if _, err := io.Copy(w, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, f.Close()
}

// Collect expands inputs into a sorted list of XML files. Directories are
// scanned one level deep, http(s) URLs are downloaded and zips are extracted
// under workDir. The returned cleanup removes anything that was downloaded or
// extracted.
func Collect(ctx context.Context, inputs []string, workDir string, appLogger *logger.Logger) ([]string, func(), error) {
	var (
		out       []string
		temporary []string
	)
	cleanup := func() {
		for _, p := range temporary {
			os.RemoveAll(p)
		}
	}
	fail := func(err error) ([]string, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	for _, in := range inputs {
		if IsRemote(in) {
			dest := filepath.Join(workDir, "download-"+uuid.NewString())
			temporary = append(temporary, dest)
			local, err := Fetch(ctx, DefaultClient, in, dest, appLogger)
			if err != nil {
				return fail(err)
			}
			in = local
		}

		info, err := os.Stat(in)
		if err != nil {
			return fail(fmt.Errorf("failed to stat %s: %w", in, err))
		}

		if info.IsDir() {
			entries, err := os.ReadDir(in)
			if err != nil {
				return fail(fmt.Errorf("failed to read %s: %w", in, err))
			}
			for _, e := range entries {
				if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
					out = append(out, filepath.Join(in, e.Name()))
				}
			}
			continue
		}

		isZip, err := IsZip(in)
		if err != nil {
			return fail(err)
		}
		if !isZip {
			out = append(out, in)
			continue
		}

		dest := filepath.Join(workDir, "zip-"+uuid.NewString())
		temporary = append(temporary, dest)
		res, err := ExtractXML(in, dest, appLogger)
		if err != nil {
			return fail(err)
		}
		out = append(out, res.Files...)
	}

	sort.Strings(out)
	return out, cleanup, nil
}
