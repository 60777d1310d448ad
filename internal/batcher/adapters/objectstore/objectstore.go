// Package objectstore adapts the S3-compatible object store driver
// pattern into a batcher.Processor: each dispatched batch becomes one
// PutObject per item, all started before any Result is produced, with
// payloads zstd-compressed when it is worth the CPU.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/FairForge/batchd/internal/batcher"
)

// Item is one object to write. Bucket and Key address it in the store;
// Body is the uncompressed payload and ContentType drives whether it is
// worth compressing.
type Item struct {
	Bucket      string
	Key         string
	Body        []byte
	ContentType string
}

// PutResult reports the stored object's ETag and whether it was
// compressed before upload.
type PutResult struct {
	ETag       string
	Compressed bool
}

// Config configures the adapter's S3 client. Endpoint is set for any
// S3-compatible backend; leave it empty to use AWS's own endpoint
// resolution.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// CompressionLevel, 1-19, is passed to zstd.WithEncoderLevel. A
	// level of 0 disables compression entirely.
	CompressionLevel int
}

// Adapter is a batcher.Processor[Item, PutResult] backed by an S3
// client. It is meant to be wired as a BlockingProcessor since PutObject
// is a blocking network call.
type Adapter struct {
	client *s3.Client
	level  int

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error
}

// New builds an Adapter from cfg.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Adapter{client: client, level: cfg.CompressionLevel}, nil
}

func (a *Adapter) encoder() (*zstd.Encoder, error) {
	a.encOnce.Do(func() {
		a.enc, a.encErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(a.level)),
			zstd.WithEncoderConcurrency(1),
		)
	})
	return a.enc, a.encErr
}

// Process implements the batcher.Processor contract: one PutObject call
// per item, each started before the previous one's response is awaited.
func (a *Adapter) Process(ctx context.Context, items []Item) ([]batcher.Result[PutResult], error) {
	results := make([]batcher.Result[PutResult], len(items))

	type outcome struct {
		idx int
		res PutResult
		err error
	}

	done := make(chan outcome, len(items))
	for i, item := range items {
		go func(i int, item Item) {
			res, err := a.putOne(ctx, item)
			done <- outcome{idx: i, res: res, err: err}
		}(i, item)
	}

	for range items {
		o := <-done
		if o.err != nil {
			results[o.idx] = batcher.Result[PutResult]{Err: o.err}
			continue
		}
		results[o.idx] = batcher.Result[PutResult]{Value: o.res}
	}

	return results, nil
}

func (a *Adapter) putOne(ctx context.Context, item Item) (PutResult, error) {
	body := item.Body
	compressed := false

	if a.level > 0 && shouldCompress(item.Body, item.ContentType) {
		enc, err := a.encoder()
		if err == nil {
			body = enc.EncodeAll(item.Body, make([]byte, 0, len(item.Body)))
			compressed = true
		}
	}

	out, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(item.Bucket),
		Key:    aws.String(item.Key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("objectstore: put %s/%s: %w", item.Bucket, item.Key, err)
	}

	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return PutResult{ETag: etag, Compressed: compressed}, nil
}

// compressedContentTypePrefixes are the top-level content-type
// categories objectstore payloads arrive as that are already compressed
// at the container level, so re-compressing them wastes CPU for no
// space saving. Matched by prefix rather than an exact-type allowlist,
// since batched writes carry whatever content type callers set, not a
// fixed catalog of upload forms.
var compressedContentTypePrefixes = []string{"image/", "video/", "audio/"}

// alreadyCompressedContentTypes covers container/archive and columnar
// data-lake formats bulk object-store writers commonly hand this
// adapter — parquet and ORC in particular are not media types and so
// would not match the prefixes above.
var alreadyCompressedContentTypes = map[string]bool{
	"application/zip": true, "application/gzip": true, "application/x-gzip": true,
	"application/x-bzip2": true, "application/x-xz": true,
	"application/x-zstd": true, "application/vnd.apache.parquet": true,
	"application/x-parquet": true, "application/x-orc": true,
}

// shouldCompress skips payloads too small to benefit and payloads whose
// declared content type, or leading magic bytes, already indicate a
// compressed format.
func shouldCompress(data []byte, contentType string) bool {
	if len(data) < 512 {
		return false
	}

	for _, prefix := range compressedContentTypePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return false
		}
	}
	if alreadyCompressedContentTypes[contentType] {
		return false
	}

	if len(data) >= 4 {
		switch {
		case data[0] == 0x50 && data[1] == 0x4B && data[2] == 0x03 && data[3] == 0x04: // ZIP
			return false
		case data[0] == 0x1F && data[1] == 0x8B: // GZIP
			return false
		case data[0] == 0x28 && data[1] == 0xB5 && data[2] == 0x2F && data[3] == 0xFD: // already zstd
			return false
		case data[0] == 0x50 && data[1] == 0x41 && data[2] == 0x52 && data[3] == 0x31: // Parquet "PAR1"
			return false
		}
	}
	return true
}
