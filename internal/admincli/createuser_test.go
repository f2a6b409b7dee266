package admincli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	username, password, actor string
	err                       error
}

func (f *fakeCreator) Create(ctx context.Context, username, password, actor string) (*models.User, error) {
	f.username, f.password, f.actor = username, password, actor
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: "u1", Username: username}, nil
}

// stubPasswords makes readPassword return the given answers in order.
func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
}

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("  alice \n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
	assert.Contains(t, out.String(), "Name?")

	got, err = GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	assert.Error(t, err)
}

func TestCreateUser_PromptsForName(t *testing.T) {
	stubPasswords(t, "secret1", "secret1")
	fc := &fakeCreator{}
	var out bytes.Buffer

	u, err := CreateUser(context.Background(), fc, "", "cli", rdr("alice\n"), 0, &out)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "alice", fc.username)
	assert.Equal(t, "secret1", fc.password)
	assert.Equal(t, "cli", fc.actor)
	assert.NotContains(t, out.String(), "secret1")
}

func TestCreateUser_Mismatch(t *testing.T) {
	stubPasswords(t, "secret1", "secret2")
	fc := &fakeCreator{}

	_, err := CreateUser(context.Background(), fc, "alice", "cli", rdr(""), 0, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Empty(t, fc.username, "service must not be called")
}

func TestCreateUser_ServiceError(t *testing.T) {
	stubPasswords(t, "secret1", "secret1")
	fc := &fakeCreator{err: common.ErrorAlreadyExists}

	_, err := CreateUser(context.Background(), fc, "alice", "cli", rdr(""), 0, &bytes.Buffer{})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestCreateUser_ReadError(t *testing.T) {
	stubPasswords(t)

	_, err := CreateUser(context.Background(), &fakeCreator{}, "alice", "cli", rdr(""), 0, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestGetPassword_WipesBuffer(t *testing.T) {
	buf := []byte("secret1")
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) { return buf, nil }

	got, err := GetPassword(0, "pw: ", &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "secret1", got)
	assert.Equal(t, make([]byte, len(buf)), buf)
}
