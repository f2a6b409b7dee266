package admincli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// ErrPasswordMismatch is returned when the confirmation differs.
var ErrPasswordMismatch = errors.New("passwords do not match")

// UserCreator is the subset of the user service the tool needs.
type UserCreator interface {
	Create(ctx context.Context, username, password, actor string) (*models.User, error)
}

// CreateUser prompts for a username (unless one is given) and a confirmed
// password, then creates the user with actor recorded in the audit columns.
func CreateUser(ctx context.Context, users UserCreator, username, actor string, in *bufio.Reader, fd int, w io.Writer) (*models.User, error) {
	var err error
	if username == "" {
		username, err = GetSimpleText(in, "Enter user name", w)
		if err != nil {
			return nil, err
		}
	}

	password, err := GetPassword(fd, "Enter password: ", w)
	if err != nil {
		return nil, err
	}
	confirm, err := GetPassword(fd, "Repeat password: ", w)
	if err != nil {
		return nil, err
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}

	u, err := users.Create(ctx, username, password, actor)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}
