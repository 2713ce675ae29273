package sftpdriver

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"path"

	"github.com/websoft9/appos/engine/internal/logging"
	"github.com/websoft9/appos/engine/internal/wire"
)

// ReadChunkSize is the streamed ReadFile chunk size (spec §4.7 ReadFile
// row).
const ReadChunkSize = 32 << 10

var logger = logging.For("sftpdriver")

// Serve runs the typed request/response loop over conn (the session's data
// connection) until the connection closes or the client disconnects
// (spec §4.7). It sends a Ready frame first, per the control-plane
// handshake (spec §4.8: Ready follows SessionOpenResult(true)).
func Serve(conn net.Conn, client *Client) error {
	if err := send(conn, wire.SftpMsgReady, wire.Ready{}); err != nil {
		return err
	}

	for {
		frame, err := wire.ReadFrame(conn, wire.DefaultMaxFrameSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		msgType, payload, err := wire.SftpDecode(frame)
		if err != nil {
			logger.Warn().Err(err).Msg("sftp: bad frame")
			continue
		}
		if err := dispatch(conn, client, msgType, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return err
			}
			logger.Warn().Err(err).Str("msg_type", string(msgType)).Msg("sftp: handler error")
		}
	}
}

func writeFrame(conn net.Conn, payload []byte) error {
	return wire.WriteFrame(conn, payload)
}

func send(conn net.Conn, t wire.SftpMsgType, payload any) error {
	b, err := wire.SftpEncode(t, payload)
	if err != nil {
		return err
	}
	return writeFrame(conn, b)
}

func sendError(conn net.Conn, requestID int64, err error) error {
	return send(conn, wire.SftpMsgError, wire.ErrorResp{
		RequestID: requestID,
		Message:   TranslateError(err),
		Code:      TranslateErrorCode(err),
	})
}

func dispatch(conn net.Conn, c *Client, msgType wire.SftpMsgType, payload []byte) error {
	switch msgType {
	case wire.SftpMsgListDir:
		var req wire.ListDirReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		entries, err := c.ListDir(req.Path)
		if err != nil {
			return sendError(conn, req.RequestID, err)
		}
		resp := wire.DirListResp{RequestID: req.RequestID, Entries: make([]wire.SftpDirEntry, len(entries))}
		for i, e := range entries {
			resp.Entries[i] = wire.SftpDirEntry{
				Name: e.Name, IsDir: e.IsDir, IsSymlink: e.IsSymlink,
				Size: e.Size, Mtime: e.Mtime, Mode: e.Mode,
			}
		}
		return send(conn, wire.SftpMsgDirList, resp)

	case wire.SftpMsgStat:
		var req wire.StatReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		info, err := c.Stat(req.Path)
		if err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgStatResult, wire.StatResultResp{
			RequestID: req.RequestID, Size: info.Size, Mode: info.Mode,
			Uid: info.Uid, Gid: info.Gid, Atime: info.Atime, Mtime: info.Mtime,
			Owner: info.Owner, Group: info.Group, IsDir: info.IsDir,
		})

	case wire.SftpMsgMkdir:
		var req wire.MkdirReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		if err := c.Mkdir(req.Path); err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgOk, wire.OkResp{RequestID: req.RequestID})

	case wire.SftpMsgRmdir:
		var req wire.RmdirReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		if err := c.Rmdir(req.Path, req.Recursive); err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgOk, wire.OkResp{RequestID: req.RequestID})

	case wire.SftpMsgUnlink:
		var req wire.UnlinkReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		if err := c.Unlink(req.Path); err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgOk, wire.OkResp{RequestID: req.RequestID})

	case wire.SftpMsgRename:
		var req wire.RenameReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		if err := c.Rename(req.Old, req.New); err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgOk, wire.OkResp{RequestID: req.RequestID})

	case wire.SftpMsgChmod:
		var req wire.ChmodReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		if err := c.Chmod(req.Path, req.Mode); err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgOk, wire.OkResp{RequestID: req.RequestID})

	case wire.SftpMsgRealpath:
		var req wire.RealpathReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		resolved, isDir, err := c.Realpath(req.Path)
		if err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgRealpathRes, wire.RealpathResultResp{
			RequestID: req.RequestID, Path: resolved, IsDir: isDir,
		})

	case wire.SftpMsgReadFile:
		var req wire.ReadFileReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		return streamReadFile(conn, c, req)

	case wire.SftpMsgWriteBegin:
		var req wire.WriteBeginReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		if err := c.WriteBegin(req.Path); err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgOk, wire.OkResp{RequestID: req.RequestID})

	case wire.SftpMsgWriteData:
		var req wire.WriteDataReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		if err := c.WriteData(req.Data); err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgOk, wire.OkResp{RequestID: req.RequestID})

	case wire.SftpMsgWriteEnd:
		var req wire.WriteEndReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		if err := c.WriteEnd(); err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgOk, wire.OkResp{RequestID: req.RequestID})

	case wire.SftpMsgExec:
		var req wire.ExecReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		result, err := c.Exec(req.Command)
		if err != nil {
			return sendError(conn, req.RequestID, err)
		}
		return send(conn, wire.SftpMsgExecResult, wire.ExecResultResp{
			RequestID: req.RequestID, Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode,
		})

	case wire.SftpMsgSearchDirs:
		var req wire.SearchDirsReq
		if err := unmarshal(payload, &req); err != nil {
			return err
		}
		paths, err := c.SearchDirs(req.SearchPath, req.MaxResults)
		if err != nil {
			return sendError(conn, req.RequestID, err)
		}
		results := make([]wire.SftpSearchResult, len(paths))
		for i, p := range paths {
			results[i] = wire.SftpSearchResult{Path: p, Name: path.Base(p), IsDir: true}
		}
		return send(conn, wire.SftpMsgSearchRes, wire.SearchResultResp{RequestID: req.RequestID, Results: results})

	default:
		logger.Warn().Str("msg_type", string(msgType)).Msg("sftp: unknown request")
		return nil
	}
}

// streamReadFile sends the file in ReadChunkSize frames followed by a
// FileEnd marker (spec §4.7 ReadFile row: "streamed").
func streamReadFile(conn net.Conn, c *Client, req wire.ReadFileReq) error {
	f, size, err := c.OpenRead(req.Path)
	if err != nil {
		return sendError(conn, req.RequestID, err)
	}
	defer f.Close()

	buf := make([]byte, ReadChunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := send(conn, wire.SftpMsgFileData, wire.FileDataResp{
				RequestID: req.RequestID, Data: chunk, TotalSize: size,
			}); err != nil {
				return err
			}
		}
		if readErr != nil {
			break
		}
	}
	return send(conn, wire.SftpMsgFileEnd, wire.FileEndResp{RequestID: req.RequestID})
}

func unmarshal(payload []byte, v any) error {
	return json.Unmarshal(payload, v)
}
