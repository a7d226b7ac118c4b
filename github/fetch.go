package github

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Build is a fetched submission: the single extracted top-level directory and
// the retained archive it came from. Dir is the private scratch area holding
// both; callers remove it when the run ends.
type Build struct {
	Root        string
	ArchivePath string
	Dir         string
}

// DownloadArchive fetches the repository zip at a commit into a fresh scratch
// directory and extracts it. The archive must extract to exactly one
// top-level directory; zero or multiple entries means the root is ambiguous.
func (c *Client) DownloadArchive(ctx context.Context, owner, repo, commit string) (*Build, error) {
	dir, err := os.MkdirTemp("", "homedome-src-*")
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	build, err := c.downloadArchive(ctx, dir, owner, repo, commit)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return build, nil
}

func (c *Client) downloadArchive(ctx context.Context, dir, owner, repo, commit string) (*Build, error) {
	url := fmt.Sprintf("%s/%s/%s/zip", c.archiveBase, owner, repo)
	if commit != "" {
		url += "/" + commit
	}

	archivePath := filepath.Join(dir, "archive.zip")
	if err := c.downloadToFile(ctx, url, archivePath); err != nil {
		return nil, err
	}

	srcDir := filepath.Join(dir, "src")
	if err := extractZip(archivePath, srcDir); err != nil {
		return nil, &FetchError{URL: url, Reason: err.Error(), Err: err}
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("list extracted tree: %w", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil, &FetchError{URL: url, Reason: fmt.Sprintf("archive extracted to %d top-level entries, want exactly one directory", len(entries))}
	}

	return &Build{
		Root:        filepath.Join(srcDir, entries[0].Name()),
		ArchivePath: archivePath,
		Dir:         dir,
	}, nil
}

func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	for _, f := range zr.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm()|0o400)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	return out.Close()
}

// safeJoin rejects archive member names that would escape dest.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive member %q escapes extraction root", name)
	}
	return target, nil
}
