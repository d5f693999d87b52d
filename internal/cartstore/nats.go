package cartstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"storefront/internal/domain"
)

// DefaultNATSBucket is used when no bucket name is configured.
const DefaultNATSBucket = "STOREFRONT_CARTS"

// NATS stores slots in a JetStream key-value bucket.
type NATS struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNATS connects to url and gets or creates the bucket.
func NewNATS(ctx context.Context, url, bucket string, ttl time.Duration) (*NATS, error) {
	if strings.TrimSpace(url) == "" {
		url = nats.DefaultURL
	}
	if strings.TrimSpace(bucket) == "" {
		bucket = DefaultNATSBucket
	}
	nc, err := nats.Connect(url, nats.Name("storefront-cart"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := getOrCreateBucket(ctx, js, bucket, ttl)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("cart bucket %s: %w", bucket, err)
	}
	return &NATS{nc: nc, kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Storefront cart snapshots",
		History:     1,
		TTL:         ttl,
	})
}

func (n *NATS) Load(ctx context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(ctx, kvKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (n *NATS) Save(ctx context.Context, key string, blob []byte) error {
	_, err := n.kv.Put(ctx, kvKey(key), blob)
	return err
}

func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}

// kvKey maps a slot key onto the KV key alphabet. Colons become dots so
// "storefront:cart:abc" reads as a token path.
func kvKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r == ':':
			b.WriteRune('.')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '=', r == '/', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}
