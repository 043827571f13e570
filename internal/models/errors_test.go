package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Normalize(nil))
	})

	t.Run("conversion errors pass through", func(t *testing.T) {
		orig := NoTablesFound("no tables found in %s", "a.pdf")
		wrapped := fmt.Errorf("pdf2excel: %w", orig)

		got := Normalize(wrapped)
		assert.Same(t, orig, got)
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		got := Normalize(fmt.Errorf("render: %w", context.DeadlineExceeded))
		assert.Equal(t, ReasonTimeout, got.Reason)
		assert.ErrorIs(t, got, context.DeadlineExceeded)
	})

	t.Run("anything else is an engine failure", func(t *testing.T) {
		raw := errors.New("segfault in filter")
		got := Normalize(raw)
		assert.Equal(t, ReasonEngineFailure, got.Reason)
		assert.Contains(t, got.Error(), "segfault in filter")
		assert.ErrorIs(t, got, raw)
	})
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Word2PDF ")
	require.NoError(t, err)
	assert.Equal(t, KindWordToPDF, k)

	_, err = ParseKind("doc2txt")
	require.Error(t, err)
	assert.True(t, IsReason(err, ReasonInvalidInput))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestKindsIsACopy(t *testing.T) {
	kinds := Kinds()
	require.Len(t, kinds, 9)
	kinds[0] = "mutated"
	assert.Equal(t, KindWordToPDF, Kinds()[0])
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, ErrorReason(""), ReasonOf(errors.New("plain")))
	assert.Equal(t, ReasonMissingDependency, ReasonOf(MissingDependency(nil, "install soffice")))
}
