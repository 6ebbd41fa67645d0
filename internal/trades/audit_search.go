package trades

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticEventMirror indexes trade events for compliance search
type ElasticEventMirror struct {
	client *elasticsearch.Client
	index  string
}

// NewElasticEventMirror connects to the given Elasticsearch nodes
func NewElasticEventMirror(addresses []string, index string) (*ElasticEventMirror, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticEventMirror{client: client, index: index}, nil
}

// Index stores the event under its id, so retries overwrite rather than duplicate
func (m *ElasticEventMirror) Index(ctx context.Context, event *TradeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	res, err := m.client.Index(
		m.index,
		bytes.NewReader(body),
		m.client.Index.WithDocumentID(event.ID.String()),
		m.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch rejected event: %s", res.String())
	}
	return nil
}
