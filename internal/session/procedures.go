package session

import (
	"context"
	"encoding/json"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/procedure"
	"exbuddy/internal/reqctx"
)

const PathGetSession = "auth.get_session"

// Register adds the session procedures. auth.get_session is private, so the
// context always carries a session by the time the handler runs.
func Register(reg *procedure.Registry) {
	reg.Query(PathGetSession, nil, func(_ context.Context, rc *reqctx.Context, _ json.RawMessage) (interface{}, error) {
		if rc == nil {
			return nil, errors.NewNoSessionError()
		}
		user, ok := rc.User()
		if !ok {
			return nil, errors.NewNoSessionError()
		}
		return user, nil
	})
}
