package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/flowengine/flowerr"
)

// CredentialsBucket is the KV bucket name backing the credential store.
const CredentialsBucket = "TOOL_CREDENTIALS"

// Store is the backing persistence contract for ToolCredentials. Resolver
// wraps a Store with caching; tests can substitute an in-memory Store.
type Store interface {
	Get(ctx context.Context, org, tool string) (ToolCredentials, error)
	Set(ctx context.Context, org, tool string, creds ToolCredentials) error
	Delete(ctx context.Context, org, tool string) error
}

// NATSStore persists credentials in a JetStream KV bucket, one entry per
// (org, tool) pair under key "{org}.{tool}".
type NATSStore struct {
	bucket jetstream.KeyValue
}

// NewNATSStore creates or attaches to the credentials KV bucket.
func NewNATSStore(ctx context.Context, nc *natsclient.Client) (*NATSStore, error) {
	return NewNATSStoreWithBucket(ctx, nc, CredentialsBucket)
}

// NewNATSStoreWithBucket is NewNATSStore with an overridable bucket name,
// for deployments that namespace KV buckets per component instance.
func NewNATSStoreWithBucket(ctx context.Context, nc *natsclient.Client, bucket string) (*NATSStore, error) {
	if nc == nil {
		return nil, fmt.Errorf("NATS client required")
	}
	if bucket == "" {
		bucket = CredentialsBucket
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Per-(org,tool) credential envelopes",
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket: %w", err)
	}
	return &NATSStore{bucket: kv}, nil
}

func credKey(org, tool string) string {
	return fmt.Sprintf("%s.%s", org, tool)
}

func (s *NATSStore) Get(ctx context.Context, org, tool string) (ToolCredentials, error) {
	entry, err := s.bucket.Get(ctx, credKey(org, tool))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ToolCredentials{}, flowerr.New(flowerr.NotFound, fmt.Sprintf("no credentials for tool %q in org %q", tool, org))
		}
		return ToolCredentials{}, flowerr.Wrap(flowerr.NotFound, err)
	}
	var creds ToolCredentials
	if err := json.Unmarshal(entry.Value(), &creds); err != nil {
		return ToolCredentials{}, flowerr.Wrap(flowerr.UnknownError, err)
	}
	return creds, nil
}

func (s *NATSStore) Set(ctx context.Context, org, tool string, creds ToolCredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return flowerr.Wrap(flowerr.UnknownError, err)
	}
	_, err = s.bucket.Put(ctx, credKey(org, tool), data)
	return err
}

func (s *NATSStore) Delete(ctx context.Context, org, tool string) error {
	return s.bucket.Delete(ctx, credKey(org, tool))
}

// DeleteByOrg removes every credential entry owned by org ("pattern
// delete" per spec's bulk-invalidation requirement).
func (s *NATSStore) DeleteByOrg(ctx context.Context, org string) error {
	keys, err := s.bucket.ListKeys(ctx)
	if err != nil {
		return err
	}
	prefix := org + "."
	for key := range keys.Keys() {
		if strings.HasPrefix(key, prefix) {
			if err := s.bucket.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}
