package exercise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "exbuddy/internal/common/errors"
	"exbuddy/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const defaultSearchSize = 50

var ErrEmptyIndex = errors.New("index name is required")

// SearchIndex runs live exercise searches against Elasticsearch.
type SearchIndex struct {
	client *elasticsearch.Client
	index  string
	size   int
}

func NewSearchIndex(client *elasticsearch.Client, index string) *SearchIndex {
	return &SearchIndex{client: client, index: index, size: defaultSearchSize}
}

// buildSearchQuery matches the query as a phrase prefix of the name, so
// "bench pr" finds "Bench Press" but "ench" finds nothing.
func buildSearchQuery(query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"match_phrase_prefix": map[string]interface{}{
				"name": map[string]interface{}{
					"query": query,
				},
			},
		},
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"name.raw": "asc"},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.Exercise `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *SearchIndex) Search(ctx context.Context, query string) ([]models.Exercise, error) {
	if s.index == "" {
		return nil, ErrEmptyIndex
	}
	body, err := json.Marshal(buildSearchQuery(query, s.size))
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(s.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError(s.index, fmt.Errorf("status %s", res.Status()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}

	out := make([]models.Exercise, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		ex := h.Source
		if ex.SetIDs == nil {
			ex.SetIDs = []string{}
		}
		out = append(out, ex)
	}
	return out, nil
}

// Sync writes every directory entry into the index with the entry id as
// document id, so reruns overwrite rather than duplicate.
func (s *SearchIndex) Sync(ctx context.Context, entries []models.Exercise) error {
	if s.index == "" {
		return ErrEmptyIndex
	}
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, ex := range entries {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": s.index, "_id": ex.ID},
		}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return err
		}
		if err := json.NewEncoder(&buf).Encode(ex); err != nil {
			return err
		}
	}

	res, err := s.client.Bulk(strings.NewReader(buf.String()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index failed: %s", res.String())
	}

	var summary struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&summary); err != nil {
		return fmt.Errorf("decode bulk: %w", err)
	}
	if summary.Errors {
		return fmt.Errorf("bulk index reported item errors")
	}
	return nil
}
