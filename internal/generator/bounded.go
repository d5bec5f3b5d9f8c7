package generator

import (
	"context"
	"fmt"
	"unicode/utf8"

	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// Bounded calls gen, appends suffix, and returns the first text whose length
// in characters is at most maxLen. An error from gen is returned as is.
// maxAttempts of zero regenerates until a text fits or ctx is done.
func Bounded(ctx context.Context, gen func() (string, error), suffix string, maxLen, maxAttempts int) (string, error) {
	if maxLen <= 0 {
		return "", fmt.Errorf("%w: max length must be positive, got %d", apperrors.ErrInvalidArgument, maxLen)
	}
	for attempt := 1; maxAttempts == 0 || attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := gen()
		if err != nil {
			return "", err
		}
		text += suffix
		if utf8.RuneCountInString(text) <= maxLen {
			return text, nil
		}
	}
	return "", fmt.Errorf("%w: no text within %d characters after %d attempts", apperrors.ErrRetryLimit, maxLen, maxAttempts)
}
