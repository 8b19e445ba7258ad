package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	commonhttp "exbuddy/internal/common/http"
	"exbuddy/internal/models"
)

const (
	directoryPath = "exercise.public.directory"
	searchPath    = "exercise.public.search_exercises"
)

// ProcedureError is a failed procedure call as reported by the server.
type ProcedureError struct {
	Path       string
	Code       string
	Message    string
	HTTPStatus int
}

func (e *ProcedureError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Code)
}

// ProcedureClient calls the exercise procedures over HTTP. It implements
// SearchFetcher and DirectoryLoader.
type ProcedureClient struct {
	baseURL string
	http    *commonhttp.Client
}

// NewProcedureClient; baseURL is the procedure mount point, for example
// http://localhost:3000/api/trpc.
func NewProcedureClient(baseURL string, client *commonhttp.Client) *ProcedureClient {
	return &ProcedureClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *ProcedureClient) Search(ctx context.Context, query string) ([]models.Exercise, error) {
	input, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	var out []models.Exercise
	if err := c.query(ctx, searchPath, input, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ProcedureClient) Directory(ctx context.Context) ([]models.Exercise, error) {
	var out []models.Exercise
	if err := c.query(ctx, directoryPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type callResponse struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Data    struct {
			HTTPStatus int `json:"httpStatus"`
		} `json:"data"`
	} `json:"error"`
}

func (c *ProcedureClient) query(ctx context.Context, path string, input []byte, out interface{}) error {
	u := c.baseURL + "/" + path
	if len(input) > 0 {
		u += "?input=" + url.QueryEscape(string(input))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var r callResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("decode %s (status %d): %w", path, resp.StatusCode, err)
	}
	if r.Error != nil {
		return &ProcedureError{
			Path:       path,
			Code:       r.Error.Code,
			Message:    r.Error.Message,
			HTTPStatus: r.Error.Data.HTTPStatus,
		}
	}
	if r.Result == nil {
		return fmt.Errorf("call %s: empty response (status %d)", path, resp.StatusCode)
	}
	return json.Unmarshal(r.Result.Data, out)
}
