// Package assethost mirrors media to an S3-compatible bucket served by a CDN.
package assethost

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// Asset is what the host reports back for an accepted upload
type Asset struct {
	ID     string
	URL    string
	Width  int
	Height int
}

// Host uploads and destroys hosted assets
type Host interface {
	Upload(ctx context.Context, key string, body io.Reader) (Asset, error)
	Destroy(ctx context.Context, assetID string) error
}

// S3API is the subset of the S3 client the host uses
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// S3Host implements Host on an S3 bucket
type S3Host struct {
	api       S3API
	bucket    string
	publicURL string
}

// NewS3 creates a host from connection settings. Empty keys fall back to the default AWS credential chain.
func NewS3(ctx context.Context, cfg Config) (*S3Host, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}, singleAttempt)
	return NewS3WithAPI(client, cfg.Bucket, cfg.PublicURL), nil
}

// singleAttempt disables SDK retries: an asset gets one upload attempt per run
func singleAttempt(o *s3.Options) {
	o.RetryMaxAttempts = 1
}

// NewS3WithAPI builds a host around an existing client
func NewS3WithAPI(api S3API, bucket, publicURL string) *S3Host {
	return &S3Host{api: api, bucket: bucket, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// Upload spools body to a temp file so the object can be sniffed, measured and
// sent with a known length, then puts it under key.
func (h *S3Host) Upload(ctx context.Context, key string, body io.Reader) (Asset, error) {
	tmp, err := os.CreateTemp("", "folio-asset-*")
	if err != nil {
		return Asset{}, fmt.Errorf("create spool file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, body)
	if err != nil {
		return Asset{}, fmt.Errorf("download: %w", err)
	}
	if size == 0 {
		return Asset{}, fmt.Errorf("download: empty body")
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Asset{}, fmt.Errorf("rewind spool file: %w", err)
	}
	mt, err := mimetype.DetectReader(tmp)
	if err != nil {
		return Asset{}, fmt.Errorf("detect content type: %w", err)
	}

	width, height := Probe(tmp)

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Asset{}, fmt.Errorf("rewind spool file: %w", err)
	}
	_, err = h.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(mt.String()),
		CacheControl:  aws.String("public, max-age=86400"),
	})
	if err != nil {
		return Asset{}, fmt.Errorf("put object %s: %w", key, err)
	}

	return Asset{ID: key, URL: h.URL(key), Width: width, Height: height}, nil
}

// Destroy removes a hosted asset
func (h *S3Host) Destroy(ctx context.Context, assetID string) error {
	_, err := h.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(assetID),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", assetID, err)
	}
	return nil
}

// URL returns the public address of key
func (h *S3Host) URL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return h.publicURL + "/" + strings.Join(segments, "/")
}

var unsafeKeyChars = strings.NewReplacer(
	"&", "and",
	"/", "-", `\`, "-", "?", "-", "%", "-", "*", "-",
	":", "-", "|", "-", `"`, "-", "<", "-", ">", "-",
)

// AssetKey derives the hosted id of a media file. The media id is a key segment,
// so same-named files in one folder never share an object.
func AssetKey(prefix, nodePath, mediaID, fileName string) string {
	return path.Join(prefix, strings.TrimPrefix(nodePath, "/"),
		unsafeKeyChars.Replace(mediaID), unsafeKeyChars.Replace(fileName))
}
