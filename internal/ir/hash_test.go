package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentHash_OrderIndependent(t *testing.T) {
	a, err := ComponentHash([]SourceID{5, 2, 9})
	require.NoError(t, err)
	b, err := ComponentHash([]SourceID{9, 5, 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestComponentHash_DistinctInputs(t *testing.T) {
	a, err := ComponentHash([]SourceID{1, 2})
	require.NoError(t, err)
	b, err := ComponentHash([]SourceID{1, 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestComponentHash_DoesNotMutateInput(t *testing.T) {
	inputs := []SourceID{3, 1, 2}
	_, err := ComponentHash(inputs)
	require.NoError(t, err)
	assert.Equal(t, []SourceID{3, 1, 2}, inputs)
}

func TestComponentHash_Empty(t *testing.T) {
	a, err := ComponentHash(nil)
	require.NoError(t, err)
	b, err := ComponentHash([]SourceID{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRecordsHash_DomainSeparated(t *testing.T) {
	assert.NotEqual(t, RecordsHash([]byte("x")), hashWithDomain(DomainComposite, []byte("x")))
	assert.Equal(t, RecordsHash([]byte("x")), RecordsHash([]byte("x")))
}
