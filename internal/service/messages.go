package service

import (
	"errors"

	"github.com/target/quill/internal/domain/article"
	domainauth "github.com/target/quill/internal/domain/auth"
	apperrors "github.com/target/quill/internal/errors"
)

var friendlyProviderErrors = []struct {
	err error
	msg string
}{
	{domainauth.ErrInvalidCredentials, "email or password is incorrect"},
	{domainauth.ErrAlreadyRegistered, "this email is already registered, sign in instead"},
	{domainauth.ErrEmailNotConfirmed, "please confirm your email address first"},
	{domainauth.ErrSignUpDisabled, "registration is currently disabled"},
	{domainauth.ErrRateLimited, "too many attempts, please try again later"},
	{article.ErrTitleRequired, "please enter a title"},
	{article.ErrTitleTooLong, "title must be at most 100 characters"},
	{article.ErrContentEmpty, "please enter some content"},
}

// FriendlyMessage turns an error from any service operation into a short
// user-facing message. Unknown errors are reported as "operation failed: <err>".
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, fe := range friendlyProviderErrors {
		if errors.Is(err, fe.err) {
			return fe.msg
		}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrCodeForbidden:
			return "you do not have permission to do that"
		case apperrors.ErrCodeUnauthenticated:
			return "please sign in first"
		case apperrors.ErrCodeNotFound:
			return "the article no longer exists"
		case apperrors.ErrCodeUnavailable, apperrors.ErrCodeTimeout:
			return "the server could not be reached, please try again"
		case apperrors.ErrCodeValidation:
			if appErr.Cause != nil {
				return appErr.Cause.Error()
			}
			return appErr.Message
		}
	}
	return "operation failed: " + err.Error()
}
