package imgset

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// -----------------------------------------------------------------------------
// Path mapping
// -----------------------------------------------------------------------------

// PathMapping rewrites logical key prefixes into backend locations, for
// example "data/imagenet/" into "cluster:s3://bucket/imagenet/".
//
// The longest matching prefix wins. Keys matching no prefix pass through
// unchanged.
type PathMapping struct {
	// rules are sorted by descending prefix length.
	rules []mappingRule
}

type mappingRule struct {
	from string
	to   string
}

// NewPathMapping builds a PathMapping from a prefix -> replacement table.
// Empty source prefixes are ignored.
func NewPathMapping(m map[string]string) PathMapping {
	rules := make([]mappingRule, 0, len(m))
	for from, to := range m {
		if from == "" {
			continue
		}
		rules = append(rules, mappingRule{from: from, to: to})
	}
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].from) != len(rules[j].from) {
			return len(rules[i].from) > len(rules[j].from)
		}
		return rules[i].from < rules[j].from
	})
	return PathMapping{rules: rules}
}

// Resolve returns key rewritten through the longest matching prefix.
func (p PathMapping) Resolve(key string) string {
	for _, r := range p.rules {
		if strings.HasPrefix(key, r.from) {
			return r.to + strings.TrimPrefix(key, r.from)
		}
	}
	return key
}

// Len returns the number of mapping rules.
func (p PathMapping) Len() int {
	return len(p.rules)
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client fetches raw bytes for sample keys from a bound Store.
//
// A Client is immutable after construction and safe for concurrent use as
// long as its Store is.
type Client struct {
	store   Store
	mapping PathMapping
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPathMapping rewrites keys through the given prefix table before they
// reach the store.
func WithPathMapping(m map[string]string) ClientOption {
	return func(c *Client) {
		c.mapping = NewPathMapping(m)
	}
}

// NewClient binds a Client to store.
func NewClient(store Store, opts ...ClientOption) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("imgset: store is required")
	}
	c := &Client{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Store returns the bound store.
func (c *Client) Store() Store {
	return c.store
}

// Resolve returns the backend location key is fetched from.
func (c *Client) Resolve(key string) string {
	return c.mapping.Resolve(key)
}

// Fetch returns the bytes stored under key.
//
// Failures wrap ErrFetch together with the store error, so callers can test
// for both ErrFetch and ErrNotFound. Fetch does not retry.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	target := c.Resolve(key)

	rc, err := c.store.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, target, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %w", ErrFetch, target, err)
	}
	return data, nil
}
