package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
)

// ArticleKind is the Datastore kind holding archived articles
const ArticleKind = "Article"

// ArticleRecord is one generated article as stored in the archive
type ArticleRecord struct {
	JobID     string    `datastore:"job_id"`
	Keyword   string    `datastore:"keyword"`
	Content   string    `datastore:"content,noindex"`
	WordCount int       `datastore:"word_count"`
	CreatedAt time.Time `datastore:"created_at"`
}

// Archive keeps a durable copy of generated articles
type Archive interface {
	SaveArticle(ctx context.Context, record *ArticleRecord) error
	Ping(ctx context.Context) error
}

// DatastoreArchive implements Archive on Google Cloud Datastore
type DatastoreArchive struct {
	client *datastore.Client
}

var _ Archive = (*DatastoreArchive)(nil)

// NewDatastoreArchive connects to the Datastore of projectID
func NewDatastoreArchive(ctx context.Context, projectID string) (*DatastoreArchive, error) {
	client, err := datastore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore client: %w", err)
	}
	return &DatastoreArchive{client: client}, nil
}

// SaveArticle stores record keyed by its job id, so a retried save overwrites
// rather than duplicates.
func (a *DatastoreArchive) SaveArticle(ctx context.Context, record *ArticleRecord) error {
	key := datastore.NameKey(ArticleKind, record.JobID, nil)
	if _, err := a.client.Put(ctx, key, record); err != nil {
		return fmt.Errorf("failed to archive article: %w", err)
	}
	return nil
}

// Ping checks that Datastore is reachable
func (a *DatastoreArchive) Ping(ctx context.Context) error {
	query := datastore.NewQuery("__namespace__").KeysOnly().Limit(1)
	_, err := a.client.GetAll(ctx, query, nil)
	return err
}

// Close releases the client
func (a *DatastoreArchive) Close() error {
	return a.client.Close()
}
