package sftpdriver

import (
	"errors"

	"github.com/pkg/sftp"
)

// SFTP protocol status codes (draft-ietf-secsh-filexfer, SSH_FX_* family).
// pkg/sftp's *sftp.StatusError.Code carries the raw numeric code the server
// sent, so codes beyond the subset pkg/sftp's own FxCode enum names (the v4+
// extended codes a libssh2-speaking server can still emit) are handled here
// directly against their protocol-assigned numbers.
const (
	fxOK                      = 0
	fxEOF                     = 1
	fxNoSuchFile              = 2
	fxPermissionDenied        = 3
	fxFailure                 = 4
	fxBadMessage              = 5
	fxNoConnection            = 6
	fxConnectionLost          = 7
	fxOPUnsupported           = 8
	fxInvalidHandle           = 9
	fxNoSuchPath              = 10
	fxFileAlreadyExists       = 11
	fxWriteProtect            = 12
	fxNoMedia                 = 13
	fxNoSpaceOnFilesystem     = 14
	fxQuotaExceeded           = 15
	fxUnknownPrincipal        = 16
	fxLockConflict            = 17
	fxDirNotEmpty             = 18
	fxNotADirectory           = 19
	fxInvalidFilename         = 20
)

// TranslateError maps a remote SFTP failure to the short, stable English
// message the control plane forwards to the coordinator (spec §4.7's
// status-to-message table). There is no pack precedent for this exact
// table — it is grounded directly on the spec's literal mapping, applied
// against pkg/sftp's *sftp.StatusError.Code field.
func TranslateError(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *sftp.StatusError
	if !errors.As(err, &statusErr) {
		return "SFTP error"
	}
	switch statusErr.Code {
	case fxNoSuchFile, fxNoSuchPath, fxInvalidFilename:
		return "Path does not exist"
	case fxPermissionDenied:
		return "Permission denied"
	case fxFileAlreadyExists:
		return "Already exists"
	case fxWriteProtect, fxNoMedia, fxNoSpaceOnFilesystem:
		return "No space left"
	case fxQuotaExceeded:
		return "Quota exceeded"
	case fxDirNotEmpty:
		return "Directory not empty"
	case fxNotADirectory:
		return "Not a directory"
	default:
		return "SFTP error"
	}
}

// TranslateErrorCode returns the short stable code that accompanies
// TranslateError's message in the wire Error response (spec §4.7's
// status-to-message table names both a message and a code per status). A
// non-StatusError failure (connection loss, malformed request) falls back
// to the generic "SFTP_ERROR" code.
func TranslateErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *sftp.StatusError
	if !errors.As(err, &statusErr) {
		return "SFTP_ERROR"
	}
	switch statusErr.Code {
	case fxNoSuchFile, fxNoSuchPath, fxInvalidFilename:
		return "NO_SUCH_FILE"
	case fxPermissionDenied:
		return "PERMISSION_DENIED"
	case fxFileAlreadyExists:
		return "FILE_ALREADY_EXISTS"
	case fxWriteProtect, fxNoMedia, fxNoSpaceOnFilesystem:
		return "NO_SPACE"
	case fxQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case fxDirNotEmpty:
		return "DIR_NOT_EMPTY"
	case fxNotADirectory:
		return "NOT_A_DIRECTORY"
	default:
		return "SFTP_ERROR"
	}
}
