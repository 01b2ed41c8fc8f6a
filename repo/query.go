package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"

	"mailflow/config"
)

const (
	contactIndex = "contact_index"
	queryBatch   = 1000
)

var ErrQueryFailed = errors.New("segment query failed")

// QueryRepo resolves segment membership from the search store. Segment
// definitions are indexed alongside contacts as a segment_ids field.
type QueryRepo interface {
	ResolveSegment(ctx context.Context, segmentID uint64) ([]uint64, error)
	Close(ctx context.Context) error
}

type queryRepo struct {
	client *elasticsearch.Client
}

func NewQueryRepo(_ context.Context, cfg config.Elasticsearch) (QueryRepo, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addr,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, err
	}
	return &queryRepo{client: client}, nil
}

type searchResult struct {
	Hits struct {
		Hits []struct {
			Source struct {
				ContactID uint64 `json:"contact_id"`
			} `json:"_source"`
			Sort []interface{} `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *queryRepo) ResolveSegment(ctx context.Context, segmentID uint64) ([]uint64, error) {
	var (
		contactIDs  []uint64
		searchAfter []interface{}
	)

	for {
		query := map[string]interface{}{
			"size":    queryBatch,
			"_source": []string{"contact_id"},
			"query": map[string]interface{}{
				"term": map[string]interface{}{
					"segment_ids": segmentID,
				},
			},
			"sort": []map[string]interface{}{
				{"contact_id": "asc"},
			},
		}
		if searchAfter != nil {
			query["search_after"] = searchAfter
		}

		body := new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(query); err != nil {
			return nil, err
		}

		res, err := r.client.Search(
			r.client.Search.WithContext(ctx),
			r.client.Search.WithIndex(contactIndex),
			r.client.Search.WithBody(body),
		)
		if err != nil {
			return nil, err
		}

		if res.IsError() {
			errMsg := res.String()
			_ = res.Body.Close()
			return nil, fmt.Errorf("%w: %s", ErrQueryFailed, errMsg)
		}

		result := new(searchResult)
		err = json.NewDecoder(res.Body).Decode(result)
		_ = res.Body.Close()
		if err != nil {
			return nil, err
		}

		if len(result.Hits.Hits) == 0 {
			break
		}

		for _, hit := range result.Hits.Hits {
			contactIDs = append(contactIDs, hit.Source.ContactID)
		}
		searchAfter = result.Hits.Hits[len(result.Hits.Hits)-1].Sort

		if len(result.Hits.Hits) < queryBatch {
			break
		}
	}

	return contactIDs, nil
}

func (r *queryRepo) Close(_ context.Context) error {
	return nil
}
