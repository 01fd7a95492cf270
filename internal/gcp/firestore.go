package gcp

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/searchablepdf/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreStatusStore keeps one conversion record per document in a collection.
type FirestoreStatusStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStatusStore returns a store writing into the named collection.
func NewFirestoreStatusStore(client *firestore.Client, collection string) *FirestoreStatusStore {
	return &FirestoreStatusStore{client: client, collection: collection}
}

// Create adds a new conversion record and returns its document ID.
func (s *FirestoreStatusStore) Create(ctx context.Context, rec models.Conversion) (string, error) {
	docRef, _, err := s.client.Collection(s.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create conversion record: %w", err)
	}
	return docRef.ID, nil
}

// Update sets the given fields on an existing record.
func (s *FirestoreStatusStore) Update(ctx context.Context, id string, fields map[string]any) error {
	if _, err := s.client.Collection(s.collection).Doc(id).Update(ctx, toUpdates(fields)); err != nil {
		return fmt.Errorf("failed to update conversion record %s: %w", id, err)
	}
	return nil
}

// FindBySourceHash returns the ID of a record with the given source hash, or "" if none exists.
func (s *FirestoreStatusStore) FindBySourceHash(ctx context.Context, sourceHash string) (string, error) {
	docs, err := s.client.Collection(s.collection).Where("sourceHash", "==", sourceHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return docs[0].Ref.ID, nil
	}
	return "", nil
}

// toUpdates turns a field map into Firestore updates in a stable order.
func toUpdates(fields map[string]any) []firestore.Update {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	updates := make([]firestore.Update, 0, len(paths))
	for _, p := range paths {
		updates = append(updates, firestore.Update{Path: p, Value: fields[p]})
	}
	return updates
}
