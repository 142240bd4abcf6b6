// Package storage implements domain.ObjectStore for GCS, S3-compatible storage and
// Azure Blob Storage.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"lake-wap/internal/domain"
)

// Credentials holds the per-provider settings used by Open. Only the fields of
// the provider selected by the bucket URI are read.
type Credentials struct {
	GCSKeyFile string // service account JSON; empty uses application default credentials

	S3Endpoint string // host[:port] of an S3-compatible endpoint; empty uses AWS
	S3Region   string
	S3KeyID    string
	S3Secret   string
	S3URLStyle string // "path" (default) or "vhost"

	AzureAccountName string
	AzureAccountKey  string
}

// Location is a parsed bucket URI.
type Location struct {
	Scheme string // gs, s3 or az
	Bucket string // bucket or container
	Prefix string // optional key prefix, no leading or trailing slash
}

// ParseURI parses a bucket URI such as gs://mvp-landing, s3://bucket/prefix,
// az://container or abfss://container@account.dfs.core.windows.net/prefix.
func ParseURI(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("parse bucket URI %q: %w", uri, err)
	}

	var loc Location
	switch u.Scheme {
	case "gs", "s3", "az":
		loc = Location{Scheme: u.Scheme, Bucket: u.Host}
	case "abfss":
		// url.Parse puts the container in userinfo and the account in host.
		if u.User == nil {
			return Location{}, fmt.Errorf("abfss URI %q missing container@account component", uri)
		}
		loc = Location{Scheme: "az", Bucket: u.User.Username()}
	case "":
		return Location{}, fmt.Errorf("bucket URI %q has no scheme", uri)
	default:
		return Location{}, fmt.Errorf("unsupported bucket URI scheme %q in %q", u.Scheme, uri)
	}
	if loc.Bucket == "" {
		return Location{}, fmt.Errorf("empty bucket in URI %q", uri)
	}
	loc.Prefix = strings.Trim(u.Path, "/")
	return loc, nil
}

// Open returns the object store for a bucket URI.
func Open(ctx context.Context, uri string, creds Credentials) (domain.ObjectStore, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case "gs":
		return NewGCSStore(ctx, loc, creds.GCSKeyFile)
	case "s3":
		return NewS3Store(loc, creds)
	case "az":
		return NewAzureStore(loc, creds.AzureAccountName, creds.AzureAccountKey)
	default:
		return nil, fmt.Errorf("unsupported bucket URI scheme %q", loc.Scheme)
	}
}

// objectKey joins the location prefix and key.
func (l Location) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if l.Prefix == "" {
		return key
	}
	return path.Join(l.Prefix, key)
}
