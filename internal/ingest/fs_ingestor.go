package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// FSIngestor collects file sources from the local filesystem. Files with
// identical content are only collected once per call.
type FSIngestor struct {
	AllowedExts map[string]struct{} // lowercased sans '.'; nil -> default set
	SkipHidden  bool
	Logger      *slog.Logger
}

func NewFSIngestor(exts []string, skipHidden bool, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{
		AllowedExts: constants.ExtensionSet(exts),
		SkipHidden:  skipHidden,
		Logger:      logger,
	}
}

// CollectPath checks one file and returns it as a source.
func (i *FSIngestor) CollectPath(path string) (entity.FileSource, FileResult, error) {
	res := FileResult{Path: path}

	src, err := entity.NewFileSource(path)
	if err != nil {
		return entity.FileSource{}, res, err
	}
	res.Path = src.Path

	ext := constants.NormalizeExt(filepath.Ext(src.Path))
	if ext == "" || !AllowedExt(ext, i.AllowedExts) {
		return entity.FileSource{}, res, fmt.Errorf("unsupported or missing extension: %q", ext)
	}

	info, err := os.Stat(src.Path)
	if err != nil {
		return entity.FileSource{}, res, err
	}
	if info.IsDir() {
		return entity.FileSource{}, res, fmt.Errorf("%s is a directory", src.Path)
	}

	sum, err := hashFile(src.Path)
	if err != nil {
		return entity.FileSource{}, res, err
	}
	res.HashHex = sum
	return src, res, nil
}

// CollectPaths collects the given files, skipping duplicates and recording
// per-file errors instead of failing.
func (i *FSIngestor) CollectPaths(paths []string) ([]entity.Source, []FileResult) {
	seen := map[string]struct{}{}
	var (
		srcs    []entity.Source
		results []FileResult
	)
	for _, p := range paths {
		src, res, err := i.CollectPath(p)
		if err != nil {
			res.Err = err.Error()
			i.Logger.Warn("ingest.collect.skip", "path", p, "error", err)
			results = append(results, res)
			continue
		}
		if _, dup := seen[res.HashHex]; dup {
			res.Deduplicated = true
			results = append(results, res)
			continue
		}
		seen[res.HashHex] = struct{}{}
		srcs = append(srcs, src)
		results = append(results, res)
	}
	return srcs, results
}

// CollectDirectory walks root, skips hidden entries if requested,
// and collects every matching file. Returns per-file results + aggregate stats.
func (i *FSIngestor) CollectDirectory(root string) ([]entity.Source, []FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	var (
		srcs    []entity.Source
		results []FileResult
		stats   DirStats
	)
	seen := map[string]struct{}{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if i.SkipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path), i.AllowedExts) {
			return nil
		}
		stats.Matched++

		src, res, err := i.CollectPath(path)
		if err != nil {
			res.Err = err.Error()
			results = append(results, res)
			stats.Failed++
			return nil
		}
		if _, dup := seen[res.HashHex]; dup {
			res.Deduplicated = true
			results = append(results, res)
			stats.Deduplicated++
			return nil
		}
		seen[res.HashHex] = struct{}{}
		srcs = append(srcs, src)
		results = append(results, res)
		stats.Collected++
		return nil
	})
	if err != nil {
		return srcs, results, stats, fmt.Errorf("walk: %w", err)
	}

	i.Logger.Info("ingest.collect.directory",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"collected", stats.Collected,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return srcs, results, stats, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
