// Package program handles control-program deployment: locating compiled
// program archives, pushing them to the processor over SFTP, and driving
// the console commands that load them.
package program

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Candidate is one program archive found on disk.
type Candidate struct {
	Path    string
	Size    int64
	ModTime int64
}

// FindCandidates globs root with the given doublestar patterns and returns
// matches newest first. Typical patterns are "**/*.lpz" and "**/*.cpz".
func FindCandidates(root string, patterns []string) ([]Candidate, error) {
	seen := make(map[string]bool)
	var out []Candidate

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			seen[match] = true

			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			out = append(out, Candidate{
				Path:    match,
				Size:    info.Size(),
				ModTime: info.ModTime().Unix(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ModTime > out[j].ModTime
	})
	return out, nil
}

// Newest returns the most recently modified candidate.
func Newest(root string, patterns []string) (Candidate, error) {
	candidates, err := FindCandidates(root, patterns)
	if err != nil {
		return Candidate{}, err
	}
	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("no program archives under %s (patterns %v)", root, patterns)
	}
	return candidates[0], nil
}

// Digest returns the hex SHA-256 of a file, used to verify the uploaded
// copy matches the local one.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
