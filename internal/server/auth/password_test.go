package auth

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, h.Verify("correct horse", hash))
	assert.False(t, h.Verify("wrong horse", hash))
	assert.False(t, h.Verify("correct horse", "not-a-hash"))
}

func TestBcryptHasher_SaltsEachHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	a, err := h.Hash("pw")
	require.NoError(t, err)
	b, err := h.Hash("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBcryptHasher_TooLong(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost).Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestNewBcryptHasher_DefaultCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
}
