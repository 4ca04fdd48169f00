/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package wal

import "bytes"
import "context"
import "encoding/json"
import "fmt"
import "io"
import "sort"
import "strings"
import "sync"

import "github.com/aws/aws-sdk-go-v2/aws"
import "github.com/aws/aws-sdk-go-v2/config"
import "github.com/aws/aws-sdk-go-v2/credentials"
import "github.com/aws/aws-sdk-go-v2/service/s3"

// S3StoreConfig names the bucket and credentials an S3SegmentStore talks
// to, the same field set as storage/persistence-s3.go's S3Factory.
type S3StoreConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3SegmentStore is an alternate SegmentStore for archived (compressed)
// segment copies living in an S3-compatible bucket. Objects can't be
// appended, so this store is write-once per name, matching
// persistence-s3.go's "buffer and replace objects" approach for its own
// log segments.
type S3SegmentStore struct {
	cfg S3StoreConfig

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewS3SegmentStore builds a store against cfg; the AWS client is created
// lazily on first use so construction never touches the network.
func NewS3SegmentStore(cfg S3StoreConfig) *S3SegmentStore {
	return &S3SegmentStore{cfg: cfg}
}

func (s *S3SegmentStore) ensureOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		Fatal(FatalError{Reason: fmt.Sprintf("S3SegmentStore: failed to load AWS config: %v", err)})
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.cfg.Endpoint) })
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	s.opened = true
}

func (s *S3SegmentStore) key(name string) string {
	pfx := strings.TrimSuffix(s.cfg.Prefix, "/")
	if pfx == "" {
		return name
	}
	return pfx + "/" + name
}

func (s *S3SegmentStore) Put(name string, data []byte) error {
	s.ensureOpen()
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return err
	}
	return s.appendManifest(name)
}

func (s *S3SegmentStore) Get(name string) ([]byte, error) {
	s.ensureOpen()
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// List relies on a manifest object rather than a bucket listing call per
// name, matching persistence-s3.go's log-segment manifest pattern.
func (s *S3SegmentStore) List() ([]string, error) {
	s.ensureOpen()
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key("manifest.json")),
	})
	if err != nil {
		return nil, nil // no manifest yet means an empty store
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3SegmentStore) appendManifest(name string) error {
	names, err := s.List()
	if err != nil {
		return err
	}
	names = append(names, name)
	raw, _ := json.Marshal(names)
	s.ensureOpen()
	_, err = s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key("manifest.json")),
		Body:   bytes.NewReader(raw),
	})
	return err
}
