package sftpdriver

import (
	"errors"
	"testing"

	"github.com/pkg/sftp"
)

func TestTranslateErrorCodeMatchesMessage(t *testing.T) {
	cases := []struct {
		code        uint32
		wantMessage string
		wantCode    string
	}{
		{fxNoSuchFile, "Path does not exist", "NO_SUCH_FILE"},
		{fxPermissionDenied, "Permission denied", "PERMISSION_DENIED"},
		{fxFileAlreadyExists, "Already exists", "FILE_ALREADY_EXISTS"},
		{fxNoSpaceOnFilesystem, "No space left", "NO_SPACE"},
		{fxQuotaExceeded, "Quota exceeded", "QUOTA_EXCEEDED"},
		{fxDirNotEmpty, "Directory not empty", "DIR_NOT_EMPTY"},
		{fxNotADirectory, "Not a directory", "NOT_A_DIRECTORY"},
		{fxFailure, "SFTP error", "SFTP_ERROR"},
	}
	for _, c := range cases {
		err := &sftp.StatusError{Code: c.code}
		if got := TranslateError(err); got != c.wantMessage {
			t.Errorf("code %d: TranslateError = %q, want %q", c.code, got, c.wantMessage)
		}
		if got := TranslateErrorCode(err); got != c.wantCode {
			t.Errorf("code %d: TranslateErrorCode = %q, want %q", c.code, got, c.wantCode)
		}
	}
}

func TestTranslateErrorCodeNonStatusError(t *testing.T) {
	err := errors.New("connection reset")
	if got := TranslateErrorCode(err); got != "SFTP_ERROR" {
		t.Errorf("got %q, want SFTP_ERROR", got)
	}
	if got := TranslateError(err); got != "SFTP error" {
		t.Errorf("got %q, want \"SFTP error\"", got)
	}
}
