package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/sqlgate/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
)

// mapError translates a MinIO SDK error into a *errs.Error, the same way
// the database drivers map engine errors.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// S3-protocol errors arrive as a typed ErrorResponse.
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		// S3 error codes take precedence over the status line.
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey":
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case "RequestTimeout", "SlowDown":
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case http.StatusBadRequest:
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		}
	}

	// Anything else is a connection / I/O failure.
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
