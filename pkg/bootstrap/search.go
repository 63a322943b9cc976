package bootstrap

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"txindexer/internal/config"
	"txindexer/internal/logger"
)

// InitElasticsearch builds the search client and verifies the cluster answers.
func InitElasticsearch(ctx context.Context, cfg config.SearchConfig, log logger.Logger) (*elasticsearch.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("search addresses are not configured")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to reach elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info returned %s", res.Status())
	}

	log.Infow("Elasticsearch connected successfully", "addresses", cfg.Addresses)
	return client, nil
}
