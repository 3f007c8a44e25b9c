package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/mstgnz/gohuifu/infra/config"
)

const (
	indexPrefix = "gohuifu"

	// SystemIndexName holds the structured application log
	SystemIndexName = indexPrefix + "-system-logs"
)

// Client wraps the OpenSearch client
type Client struct {
	client   *opensearch.Client
	config   *config.AppConfig
	gateways []string
}

// NewClient creates a new OpenSearch client and makes sure the exchange and
// notification indices exist for every gateway.
func NewClient(cfg *config.AppConfig, gateways ...string) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // For development/testing
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
		client:   client,
		config:   cfg,
		gateways: gateways,
	}

	if cfg.EnableLogging {
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

// Gateways returns the gateways indices were prepared for
func (c *Client) Gateways() []string {
	return c.gateways
}

// setupIndices creates the exchange and notification indices. Failures are
// collected so one unreachable index does not hide the others.
func (c *Client) setupIndices(ctx context.Context) error {
	var failed []string

	for _, gateway := range c.gateways {
		indices := map[string]string{
			c.ExchangeIndexName(gateway):     exchangeMapping,
			c.NotificationIndexName(gateway): notificationMapping,
		}
		for indexName, mapping := range indices {
			exists, err := c.indexExists(ctx, indexName)
			if err != nil {
				log.Printf("Error checking index %s: %v", indexName, err)
				failed = append(failed, indexName)
				continue
			}
			if exists {
				continue
			}
			if err := c.createIndex(ctx, indexName, mapping); err != nil {
				log.Printf("Error creating index %s: %v", indexName, err)
				failed = append(failed, indexName)
				continue
			}
			log.Printf("Created OpenSearch index: %s", indexName)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("indices not ready: %s", strings.Join(failed, ", "))
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

// ExchangeIndexName returns the index holding a gateway's request/response log
func (c *Client) ExchangeIndexName(gateway string) string {
	return indexPrefix + "-" + gateway + "-exchanges"
}

// NotificationIndexName returns the index holding a gateway's callback log
func (c *Client) NotificationIndexName(gateway string) string {
	return indexPrefix + "-" + gateway + "-notifications"
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.config.EnableLogging
}

const exchangeMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"gateway": {"type": "keyword"},
			"operation": {"type": "keyword"},
			"function_code": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"outcome": {"type": "keyword"},
			"code": {"type": "keyword"},
			"description": {"type": "text"},
			"error": {"type": "text"},
			"duration_ms": {"type": "long"},
			"request": {"type": "text"},
			"response": {"type": "text"}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`

const notificationMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"gateway": {"type": "keyword"},
			"event": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"state": {"type": "keyword"},
			"ack": {"type": "keyword"},
			"strategy": {"type": "keyword"},
			"payload": {"type": "text"},
			"error": {"type": "text"}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`
