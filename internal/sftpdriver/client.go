// Package sftpdriver implements the SFTP driver: typed request/response
// loop over one framed channel, backed by an SFTP client session opened
// over the SSH transport (spec §4.7).
//
// Grounded on internal/terminal/sftp.go's SFTPClient (wrapping *sftp.Client,
// owner/group resolution via exec, recursive copy/search walkers) and
// original_source/engine/src/net/sftp.c for the exact shell-escaped
// `stat -c '%U:%G'` call and the trailing-slash search convention.
package sftpdriver

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"github.com/websoft9/appos/engine/internal/sshtransport"
	cryptossh "golang.org/x/crypto/ssh"
)

// Client wraps an SFTP subsystem session opened over a (possibly jump-
// chained) SSH transport.
type Client struct {
	chain      *sshtransport.Chain
	sftpClient *sftp.Client

	openWriteFh *sftp.File
	openWrite   string
}

// Open starts the SFTP subsystem over an already dialed SSH chain.
func Open(chain *sshtransport.Chain) (*Client, error) {
	sc, err := sftp.NewClient(chain.Client)
	if err != nil {
		return nil, fmt.Errorf("sftpdriver: open subsystem: %w", err)
	}
	return &Client{chain: chain, sftpClient: sc}, nil
}

// Close releases the SFTP subsystem and the SSH chain beneath it,
// including any write handle left open by a WriteBegin with no WriteEnd.
func (c *Client) Close() error {
	if c.openWriteFh != nil {
		_ = c.openWriteFh.Close()
		c.openWriteFh = nil
	}
	_ = c.sftpClient.Close()
	return c.chain.Close()
}

func entryMode(fi os.FileInfo) (isDir, isSymlink bool) {
	return fi.IsDir(), fi.Mode()&os.ModeSymlink != 0
}

// runRemoteCommand execs a one-shot command over a fresh session channel on
// the same SSH connection the SFTP subsystem runs over.
func (c *Client) runRemoteCommand(cmd string) (string, error) {
	sess, err := c.chain.Client.NewSession()
	if err != nil {
		return "", fmt.Errorf("sftpdriver: ssh session: %w", err)
	}
	defer sess.Close()

	out, err := sess.CombinedOutput(cmd)
	if err != nil {
		return "", fmt.Errorf("sftpdriver: command failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// shellQuote wraps s in single quotes, escaping any embedded single quote
// as '\'' — the same convention original_source/engine/src/net/sftp.c uses
// before shelling out to `stat`.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ownerGroup resolves a path's owning user:group names via a single
// `stat -c '%U:%G'` round trip (spec §4.7), cheaper than the teacher's
// separate id/getent calls because the original C engine only ever makes
// one exec per Stat request.
func (c *Client) ownerGroup(remotePath string) (owner, group string) {
	out, err := c.runRemoteCommand("stat -c '%U:%G' " + shellQuote(remotePath))
	if err != nil {
		return "", ""
	}
	parts := strings.SplitN(out, ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// ListDir lists entries of path, excluding "." and "..".
func (c *Client) ListDir(dirPath string) ([]Entry, error) {
	infos, err := c.sftpClient.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		isDir, isSymlink := entryMode(fi)
		entries = append(entries, Entry{
			Name:      name,
			IsDir:     isDir,
			IsSymlink: isSymlink,
			Size:      fi.Size(),
			Mtime:     fi.ModTime().Unix(),
			Mode:      uint32(fi.Mode().Perm()),
		})
	}
	return entries, nil
}

// Entry is one ListDir/search result.
type Entry struct {
	Name      string
	IsDir     bool
	IsSymlink bool
	Size      int64
	Mtime     int64
	Mode      uint32
}

// StatInfo is the full metadata Stat returns.
type StatInfo struct {
	Size  int64
	Mode  uint32
	Uid   int
	Gid   int
	Atime int64
	Mtime int64
	Owner string
	Group string
	IsDir bool
}

// Stat returns full metadata for path, resolving owner/group names via a
// remote `stat` exec (spec §4.7).
func (c *Client) Stat(remotePath string) (StatInfo, error) {
	fi, err := c.sftpClient.Stat(remotePath)
	if err != nil {
		return StatInfo{}, err
	}
	info := StatInfo{
		Size:  fi.Size(),
		Mode:  uint32(fi.Mode().Perm()),
		Mtime: fi.ModTime().Unix(),
		IsDir: fi.IsDir(),
	}
	if sys, ok := fi.Sys().(*sftp.FileStat); ok {
		info.Uid = int(sys.UID)
		info.Gid = int(sys.GID)
		info.Atime = int64(sys.Atime)
		if info.Atime == 0 {
			info.Atime = info.Mtime
		}
	} else {
		info.Atime = info.Mtime
	}
	info.Owner, info.Group = c.ownerGroup(remotePath)
	return info, nil
}

// Mkdir creates a directory with mode 0755 (spec §4.7).
func (c *Client) Mkdir(remotePath string) error {
	if err := c.sftpClient.Mkdir(remotePath); err != nil {
		return err
	}
	return c.sftpClient.Chmod(remotePath, 0o755)
}

// Rmdir removes path. If recursive, it walks dirents depth-first, unlinking
// files and recursing into subdirectories, then rmdir's each directory on
// the way back out (spec §4.7: "Depth unbounded").
func (c *Client) Rmdir(remotePath string, recursive bool) error {
	if !recursive {
		return c.sftpClient.RemoveDirectory(remotePath)
	}
	infos, err := c.sftpClient.ReadDir(remotePath)
	if err != nil {
		return err
	}
	for _, fi := range infos {
		child := path.Join(remotePath, fi.Name())
		if fi.IsDir() && fi.Mode()&os.ModeSymlink == 0 {
			if err := c.Rmdir(child, true); err != nil {
				return err
			}
			continue
		}
		if err := c.sftpClient.Remove(child); err != nil {
			return err
		}
	}
	return c.sftpClient.RemoveDirectory(remotePath)
}

// Unlink removes a file or symlink.
func (c *Client) Unlink(remotePath string) error {
	return c.sftpClient.Remove(remotePath)
}

// Rename moves old to new, overwriting atomically when the server supports
// POSIX rename (spec §4.7).
func (c *Client) Rename(old, new string) error {
	if err := c.sftpClient.PosixRename(old, new); err == nil {
		return nil
	}
	return c.sftpClient.Rename(old, new)
}

// Chmod sets path's permission bits via setstat (spec §4.7).
func (c *Client) Chmod(remotePath string, mode uint32) error {
	return c.sftpClient.Chmod(remotePath, os.FileMode(mode))
}

// Realpath resolves path and reports whether the resolved path is a
// directory (false if the stat fails — spec §4.7).
func (c *Client) Realpath(remotePath string) (resolved string, isDir bool, err error) {
	resolved, err = c.sftpClient.RealPath(remotePath)
	if err != nil {
		return "", false, err
	}
	if fi, statErr := c.sftpClient.Stat(resolved); statErr == nil {
		isDir = fi.IsDir()
	}
	return resolved, isDir, nil
}

// OpenRead opens path for a streamed read; the caller is responsible for
// closing the returned file.
func (c *Client) OpenRead(remotePath string) (*sftp.File, int64, error) {
	fi, err := c.sftpClient.Stat(remotePath)
	if err != nil {
		return nil, 0, err
	}
	f, err := c.sftpClient.Open(remotePath)
	if err != nil {
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// WriteBegin opens path truncating with mode 0644, superseding any
// previously open write handle on this client (spec §4.7 / §9 Open
// Question: WriteBegin over an open handle replaces it without reporting an
// error to the client, preserved for compatibility; a warning is logged).
func (c *Client) WriteBegin(remotePath string) error {
	if c.openWriteFh != nil {
		logger.Warn().Str("path", c.openWrite).Msg("sftp: WriteBegin replaces an open write handle")
		_ = c.openWriteFh.Close()
	}
	f, err := c.sftpClient.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		c.openWriteFh = nil
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	c.openWriteFh = f
	c.openWrite = remotePath
	return nil
}

// WriteData appends data to the currently open write handle.
func (c *Client) WriteData(data []byte) error {
	if c.openWriteFh == nil {
		return fmt.Errorf("sftpdriver: write data with no open handle")
	}
	_, err := c.openWriteFh.Write(data)
	return err
}

// WriteEnd closes the currently open write handle.
func (c *Client) WriteEnd() error {
	if c.openWriteFh == nil {
		return nil
	}
	err := c.openWriteFh.Close()
	c.openWriteFh = nil
	c.openWrite = ""
	return err
}

// Exec runs command over a fresh session channel, capping stdout/stderr at
// sshtransport.ExecOutputCap (spec §4.7 Exec row).
func (c *Client) Exec(command string) (sshtransport.ExecResult, error) {
	sess, err := c.chain.Client.NewSession()
	if err != nil {
		return sshtransport.ExecResult{}, fmt.Errorf("sftpdriver: exec session: %w", err)
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return sshtransport.ExecResult{}, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return sshtransport.ExecResult{}, err
	}
	if err := sess.Start(command); err != nil {
		return sshtransport.ExecResult{}, err
	}

	outCh := make(chan string, 1)
	errCh := make(chan string, 1)
	go func() { outCh <- drainCapped(stdout) }()
	go func() { errCh <- drainCapped(stderr) }()

	waitErr := sess.Wait()
	result := sshtransport.ExecResult{Stdout: <-outCh, Stderr: <-errCh}
	if waitErr == nil {
		return result, nil
	}
	if exitErr, ok := waitErr.(*cryptossh.ExitError); ok {
		result.ExitCode = exitErr.ExitStatus()
		return result, nil
	}
	return result, waitErr
}

func drainCapped(r interface{ Read([]byte) (int, error) }) string {
	buf := make([]byte, sshtransport.ExecOutputCap)
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			break
		}
	}
	return string(buf[:n])
}
