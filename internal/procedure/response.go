package procedure

import (
	"net/http"

	"exbuddy/internal/common/errors"
)

// publicCacheControl lets shared caches keep all-public responses for a
// week and serve them stale for a day while revalidating.
const publicCacheControl = "s-maxage=604800, public, stale-while-revalidate=86400"

type envelope struct {
	Result *resultBody `json:"result,omitempty"`
	Error  *errorBody  `json:"error,omitempty"`
}

type resultBody struct {
	Data interface{} `json:"data"`
}

type errorBody struct {
	Message string           `json:"message"`
	Code    errors.ErrorCode `json:"code"`
	Data    errorData        `json:"data"`
}

type errorData struct {
	Code       errors.ErrorCode `json:"code"`
	HTTPStatus int              `json:"httpStatus"`
	Path       string           `json:"path,omitempty"`
	RequestID  string           `json:"requestId,omitempty"`
}

func okEnvelope(data interface{}) envelope {
	return envelope{Result: &resultBody{Data: data}}
}

func errorEnvelope(se *errors.StandardError, path, requestID string) envelope {
	return envelope{Error: &errorBody{
		Message: se.Message,
		Code:    se.Code,
		Data: errorData{
			Code:       se.Code,
			HTTPStatus: errors.HTTPStatus(se.Code),
			Path:       path,
			RequestID:  requestID,
		},
	}}
}

// batchStatus is 200 when nothing failed, the shared status when every
// entry failed the same way, and 207 otherwise.
func batchStatus(envs []envelope) int {
	status := 0
	for _, e := range envs {
		s := http.StatusOK
		if e.Error != nil {
			s = e.Error.Data.HTTPStatus
		}
		if status == 0 {
			status = s
		} else if status != s {
			return http.StatusMultiStatus
		}
	}
	if status == 0 {
		return http.StatusOK
	}
	return status
}
