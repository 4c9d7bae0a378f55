package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

var categoryTextCodes = map[goerrors.Category]string{
	goerrors.CategoryBadInput:   core.ErrorBadInput,
	goerrors.CategoryValidation: core.ErrorBadInput,
	goerrors.CategoryAuth:       core.ErrorAuthFailed,
	goerrors.CategoryAuthz:      core.ErrorAuthFailed,
	goerrors.CategoryRateLimit:  core.ErrorRateLimited,
	goerrors.CategoryExternal:   core.ErrorUpstreamFailed,
}

// transportFailure builds a categorized go-errors value. A nil source
// produces a fresh error, otherwise source is wrapped.
func transportFailure(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}

	textCode, ok := categoryTextCodes[category]
	if !ok {
		textCode = core.ErrorInternal
	}
	err = err.WithCode(code).WithTextCode(textCode)

	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
