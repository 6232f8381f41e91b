package services

import (
	"context"
	"os"
	"sync"

	"cloud.google.com/go/bigquery"
)

var DefaultBigQueryClient = sync.OnceValue(func() *bigquery.Client {
	projectID := os.Getenv("GCP_PROJECT_ID")
	if projectID == "" {
		panic("GCP_PROJECT_ID is not set, please set it in .env or the environment")
	}

	client, err := bigquery.NewClient(context.Background(), projectID)
	if err != nil {
		panic("failed to create BigQuery client: " + err.Error())
	}

	return client
})

// BigQueryDataset returns the configured dataset name.
func BigQueryDataset() string {
	dataset := os.Getenv("BIGQUERY_DATASET")
	if dataset == "" {
		dataset = "document_processing"
	}
	return dataset
}
