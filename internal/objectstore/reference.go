// Package objectstore turns bucket/prefix references into locations the
// warehouse bulk loader understands.
package objectstore

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultScheme is used when a reference names no scheme
const DefaultScheme = "s3"

// Reference points at every object under Prefix in Bucket
type Reference struct {
	Scheme string
	Bucket string
	Prefix string
}

// ParseReference accepts "scheme://bucket/prefix" or "bucket/prefix"
func ParseReference(s string) (Reference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reference{}, fmt.Errorf("empty object store reference")
	}
	if !strings.Contains(s, "://") {
		s = DefaultScheme + "://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Reference{}, fmt.Errorf("invalid object store reference %q: %w", s, err)
	}
	if u.Host == "" {
		return Reference{}, fmt.Errorf("object store reference %q has no bucket", s)
	}
	return Reference{
		Scheme: u.Scheme,
		Bucket: u.Host,
		Prefix: strings.TrimPrefix(u.Path, "/"),
	}, nil
}

// String returns the canonical location form
func (r Reference) String() string {
	scheme := r.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	if r.Prefix == "" {
		return fmt.Sprintf("%s://%s", scheme, r.Bucket)
	}
	return fmt.Sprintf("%s://%s/%s", scheme, r.Bucket, strings.TrimPrefix(r.Prefix, "/"))
}

// Resolver produces the location string passed verbatim to the warehouse
type Resolver interface {
	Resolve(ref Reference) (string, error)
}

// BucketResolver resolves references against an optional bucket override,
// so one pipeline file can target a test bucket.
type BucketResolver struct {
	// BucketOverride replaces the referenced bucket when set
	BucketOverride string
}

// Resolve implements Resolver
func (r BucketResolver) Resolve(ref Reference) (string, error) {
	if ref.Bucket == "" && r.BucketOverride == "" {
		return "", fmt.Errorf("object store reference has no bucket")
	}
	if r.BucketOverride != "" {
		ref.Bucket = r.BucketOverride
	}
	return ref.String(), nil
}
