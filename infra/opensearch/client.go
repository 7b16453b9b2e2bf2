package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/vpos/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const (
	SystemLogIndex     = "vpos-system-logs"
	ProtocolEventIndex = "vpos-protocol-events"
)

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a new OpenSearch client and makes sure the gateway
// indices exist.
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.IsProduction(),
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	osClient := &Client{
		client:  client,
		enabled: cfg.EnableLogging,
	}

	if osClient.enabled {
		if err := osClient.setupIndices(context.Background()); err != nil {
			log.Printf("Warning: Failed to setup OpenSearch indices: %v", err)
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

func (c *Client) setupIndices(ctx context.Context) error {
	indices := map[string]string{
		SystemLogIndex:     systemLogMapping,
		ProtocolEventIndex: protocolEventMapping,
	}

	for name, mapping := range indices {
		exists, err := c.indexExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check index %s: %w", name, err)
		}
		if exists {
			continue
		}
		if err := c.createIndex(ctx, name, mapping); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		log.Printf("Created OpenSearch index: %s", name)
	}
	return nil
}

func (c *Client) indexExists(ctx context.Context, indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

func (c *Client) createIndex(ctx context.Context, indexName, mapping string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}
	return nil
}

const systemLogMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date"},
			"level": {"type": "keyword"},
			"message": {"type": "text"},
			"component": {"type": "keyword"},
			"partner_id": {"type": "keyword"},
			"provider": {"type": "keyword"},
			"transaction_id": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"error": {"type": "text"}
		}
	},
	"settings": {"number_of_shards": 1, "number_of_replicas": 0}
}`

const protocolEventMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date"},
			"transaction_id": {"type": "keyword"},
			"partner_id": {"type": "keyword"},
			"terminal_id": {"type": "keyword"},
			"provider": {"type": "keyword"},
			"operation": {"type": "keyword"},
			"event_type": {"type": "keyword"},
			"status": {"type": "keyword"},
			"order_id": {"type": "keyword"},
			"request": {"type": "object", "enabled": false},
			"response": {"type": "object", "enabled": false}
		}
	},
	"settings": {"number_of_shards": 1, "number_of_replicas": 0}
}`
