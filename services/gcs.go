package services

import (
	"context"
	"sync"

	"cloud.google.com/go/storage"
)

var DefaultStorageClient = sync.OnceValue(func() *storage.Client {
	client, err := storage.NewClient(context.Background())
	if err != nil {
		panic("failed to create Cloud Storage client: " + err.Error())
	}

	return client
})
