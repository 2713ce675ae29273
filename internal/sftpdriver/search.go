package sftpdriver

import (
	"os"
	"path"
	"strings"
)

// SearchCap is the hard cap on SearchDirs results (spec §4.7).
const SearchCap = 20

// SearchMaxDepth is how many levels deep SearchDirs recurses from its base
// (spec §4.7).
const SearchMaxDepth = 3

// SearchDirs implements the spec's directory-search semantics: a trailing
// "/" in searchPath lists directories directly inside the preceding base; a
// trailing component instead acts as a case-insensitive prefix match
// against directory names anywhere down to depth 3 below the base.
// Symlinks and files are always skipped. maxResults is clamped to
// [1, SearchCap], defaulting to SearchCap when 0.
func (c *Client) SearchDirs(searchPath string, maxResults int) ([]string, error) {
	if maxResults <= 0 || maxResults > SearchCap {
		maxResults = SearchCap
	}

	if strings.HasSuffix(searchPath, "/") {
		base := strings.TrimSuffix(searchPath, "/")
		if base == "" {
			base = "/"
		}
		return c.listDirsInside(base, maxResults)
	}

	base := path.Dir(searchPath)
	prefix := strings.ToLower(path.Base(searchPath))
	var results []string
	c.searchPrefix(base, prefix, 0, maxResults, &results)
	return results, nil
}

func (c *Client) listDirsInside(base string, maxResults int) ([]string, error) {
	infos, err := c.sftpClient.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, fi := range infos {
		if len(out) >= maxResults {
			break
		}
		if !isPlainDir(fi) {
			continue
		}
		out = append(out, path.Join(base, fi.Name()))
	}
	return out, nil
}

func (c *Client) searchPrefix(base, prefix string, depth, maxResults int, results *[]string) {
	if len(*results) >= maxResults || depth >= SearchMaxDepth {
		return
	}
	infos, err := c.sftpClient.ReadDir(base)
	if err != nil {
		return
	}
	for _, fi := range infos {
		if len(*results) >= maxResults {
			return
		}
		if !isPlainDir(fi) {
			continue
		}
		child := path.Join(base, fi.Name())
		if strings.HasPrefix(strings.ToLower(fi.Name()), prefix) {
			*results = append(*results, child)
		}
		c.searchPrefix(child, prefix, depth+1, maxResults, results)
	}
}

// isPlainDir reports whether fi is a directory and not a symlink (spec
// §4.7: "Symlinked and file entries are skipped").
func isPlainDir(fi os.FileInfo) bool {
	return fi.IsDir() && fi.Mode()&os.ModeSymlink == 0
}
