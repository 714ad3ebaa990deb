package webhook

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dukex/creditflow/pkg/models"
)

var ErrInvalidAuth = errors.New("invalid webhook auth descriptor")

func applyAuth(req *http.Request, auth *models.AuthDescriptor) error {
	if auth == nil {
		return nil
	}

	switch auth.Type {
	case models.AuthTypeNone, "":
		return nil
	case models.AuthTypeBearer:
		token := auth.Credentials["token"]
		if token == "" {
			return fmt.Errorf("%w: bearer auth requires a token", ErrInvalidAuth)
		}

		req.Header.Set("Authorization", "Bearer "+token)
	case models.AuthTypeBasic:
		username := auth.Credentials["username"]
		if username == "" {
			return fmt.Errorf("%w: basic auth requires a username", ErrInvalidAuth)
		}

		req.SetBasicAuth(username, auth.Credentials["password"])
	case models.AuthTypeHeader:
		if len(auth.Credentials) == 0 {
			return fmt.Errorf("%w: header auth requires at least one header", ErrInvalidAuth)
		}

		for name, value := range auth.Credentials {
			req.Header.Set(name, value)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAuth, auth.Type)
	}

	return nil
}
