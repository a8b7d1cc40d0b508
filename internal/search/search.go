// Package search maintains and queries the elasticsearch product index.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/pufftown/delivery-backend/internal/models"
)

func NewClient(esURL, user, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch error: %s: %s", res.Status(), body)
	}
	return client, nil
}

type Service struct {
	ES    *elasticsearch.Client
	Index string
}

// IndexProducts writes every product document to the index, overwriting by
// id. Called after a full sync.
func (s *Service) IndexProducts(ctx context.Context, products []models.DeliveryProduct) error {
	for i := range products {
		body, err := json.Marshal(products[i])
		if err != nil {
			return err
		}
		res, err := s.ES.Index(
			s.Index,
			bytes.NewReader(body),
			s.ES.Index.WithContext(ctx),
			s.ES.Index.WithDocumentID(strconv.FormatUint(uint64(products[i].ID), 10)),
		)
		if err != nil {
			return fmt.Errorf("indexing product %d: %w", products[i].ID, err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("indexing product %d: %s", products[i].ID, res.Status())
		}
	}
	return nil
}

// Search runs a fuzzy multi-match over name and description.
func (s *Service) Search(ctx context.Context, query string, from, size int) (int64, []models.DeliveryProduct, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"name^2", "description", "category"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, err
	}

	res, err := s.ES.Search(
		s.ES.Search.WithContext(ctx),
		s.ES.Search.WithIndex(s.Index),
		s.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("search: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.DeliveryProduct `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	prods := make([]models.DeliveryProduct, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		prods[i] = hit.Source
	}
	return r.Hits.Total.Value, prods, nil
}
