package errors_test

import (
	"fmt"
	"testing"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := kerrors.NewValidationError(
		kerrors.FieldError{Field: "distance", Rule: "gte"},
		kerrors.FieldError{Field: "rate", Rule: "gt"},
	)

	require.ErrorIs(t, err, kerrors.ErrValidation)
	require.Contains(t, err.Error(), "distance (gte)")
	require.Contains(t, err.Error(), "rate (gt)")

	wrapped := kerrors.Wrapf(err, "create trip")
	var verr *kerrors.ValidationError
	require.True(t, kerrors.As(wrapped, &verr))
	require.Len(t, verr.Fields, 2)
}

func TestRemoteRejected(t *testing.T) {
	err := kerrors.Rejected("row %d malformed", 4)
	require.ErrorIs(t, err, kerrors.ErrRemoteRejected)
	require.Equal(t, "remote rejected: row 4 malformed", err.Error())
}

func TestWrapf(t *testing.T) {
	require.Nil(t, kerrors.Wrapf(nil, "noop"))

	err := kerrors.Wrapf(kerrors.ErrNotFound, "trip %s", "trip_1")
	require.True(t, kerrors.Is(err, kerrors.ErrNotFound))
	require.Equal(t, fmt.Sprintf("trip trip_1: %s", kerrors.ErrNotFound), err.Error())
}
