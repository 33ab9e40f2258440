package forms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	maxSearchPageSize = 100
	// maxSearchWindow matches the default index.max_result_window.
	maxSearchWindow = 10000
)

// ErrSearchPageOutOfRange reports a page that ends past the search window.
var ErrSearchPageOutOfRange = errors.New("page is beyond the search window")

// Archive indexes submitted documents in Elasticsearch and searches them.
type Archive struct {
	client *elasticsearch.Client
	index  string
}

func NewArchive(client *elasticsearch.Client, index string) *Archive {
	if index == "" {
		index = "form-submissions"
	}
	return &Archive{client: client, index: index}
}

// Index stores sub under its draft id, replacing an earlier copy.
func (a *Archive) Index(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      a.index,
		DocumentID: sub.DraftID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return fmt.Errorf("index submission: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index submission: %s", res.Status())
	}
	return nil
}

// Search runs a free-text query over archived submissions, newest first.
// An empty query matches everything.
func (a *Archive) Search(ctx context.Context, query string, page, size int) (*SearchResult, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > maxSearchPageSize {
		size = maxSearchPageSize
	}
	if page > maxSearchWindow/size {
		return nil, ErrSearchPageOutOfRange
	}

	body, err := json.Marshal(buildSearchQuery(query))
	if err != nil {
		return nil, err
	}
	from := (page - 1) * size

	req := esapi.SearchRequest{
		Index: []string{a.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return nil, fmt.Errorf("search submissions: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search submissions: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Submission `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]Submission, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		items = append(items, hit.Source)
	}
	total := r.Hits.Total.Value
	return &SearchResult{
		Items:      items,
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

func buildSearchQuery(query string) map[string]interface{} {
	match := map[string]interface{}{"match_all": map[string]interface{}{}}
	if query != "" {
		match = map[string]interface{}{
			"simple_query_string": map[string]interface{}{
				"query":            query,
				"fields":           []string{"templateId^2", "owner", "document.*"},
				"default_operator": "and",
				"lenient":          true,
			},
		}
	}
	return map[string]interface{}{
		"query": match,
		"sort": []interface{}{
			map[string]interface{}{"submittedAt": map[string]interface{}{"order": "desc"}},
		},
	}
}
