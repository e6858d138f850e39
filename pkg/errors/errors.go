package errors

import (
	"github.com/pingcap/errors"
)

// all normalized errors of the localizer project
var (
	// config errors
	ErrDecodeConfigFile = errors.Normalize(
		"decode config file failed",
		errors.RFCCodeText("LCZ:ErrDecodeConfigFile"))
	ErrConfigUnknownItem = errors.Normalize(
		"config file contains unknown configuration options: %s",
		errors.RFCCodeText("LCZ:ErrConfigUnknownItem"))
	ErrInvalidCacheCapacity = errors.Normalize(
		"max files per directory %d is below the minimum %d",
		errors.RFCCodeText("LCZ:ErrInvalidCacheCapacity"))
	ErrNoCacheRoot = errors.Normalize(
		"at least one cache root must be configured",
		errors.RFCCodeText("LCZ:ErrNoCacheRoot"))

	// localization errors
	ErrCreateCacheRootFailed = errors.Normalize(
		"create cache root directory %s failed",
		errors.RFCCodeText("LCZ:ErrCreateCacheRootFailed"))
	ErrDispatcherClosed = errors.Normalize(
		"event dispatcher is already closed",
		errors.RFCCodeText("LCZ:ErrDispatcherClosed"))
)

// Wrap generates a new error based on args and wraps it to
// the normalized error.
func Wrap(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}
