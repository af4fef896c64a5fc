package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/render"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	DefaultPrefix     = "renders"
	DefaultLinkExpiry = 15 * time.Minute
)

var ErrNoPublicEndpoint = errors.New("no public endpoint configured")

// S3Config holds the connection settings of an S3 compatible store.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds a path-style client. Checksums are only sent when an
// operation demands them, which older MinIO and Garage releases need.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
		config.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.Endpoint))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// S3Sink stores rendered pages as PNG objects under
// <prefix>/<job>/<index>.png and hands out presigned links to them.
type S3Sink struct {
	client         *s3.Client
	bucket         string
	prefix         string
	publicEndpoint string
	linkExpiry     time.Duration
}

// NewS3SinkParams configures an S3Sink. PublicEndpoint is the address
// browsers reach the store at; when empty Link fails and pages must be
// proxied through Get.
type NewS3SinkParams struct {
	Client         *s3.Client
	Bucket         string
	Prefix         string
	PublicEndpoint string
	LinkExpiry     time.Duration
}

func NewS3Sink(params NewS3SinkParams) *S3Sink {
	s := &S3Sink{
		client:         params.Client,
		bucket:         params.Bucket,
		prefix:         strings.Trim(params.Prefix, "/"),
		publicEndpoint: params.PublicEndpoint,
		linkExpiry:     params.LinkExpiry,
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.linkExpiry <= 0 {
		s.linkExpiry = DefaultLinkExpiry
	}
	return s
}

// PageKey returns the object key of a rendered page.
func (s *S3Sink) PageKey(jobID string, index int) string {
	return fmt.Sprintf("%s/%s/%d.png", s.prefix, jobID, index)
}

// Store uploads one rendered page.
func (s *S3Sink) Store(ctx context.Context, jobID string, index int, img *image.RGBA) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode page %d: %w", index, err)
	}

	key := s.PageKey(jobID, index)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}

	logger.Debug("[Storage] stored page", "key", key, "bytes", buf.Len())
	return nil
}

// Get downloads a stored page.
func (s *S3Sink) Get(ctx context.Context, jobID string, index int) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.PageKey(jobID, index)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return data, nil
}

// Link presigns a GET for a stored page against the public endpoint. Any
// path on the public endpoint is kept in front of the bucket.
func (s *S3Sink) Link(ctx context.Context, jobID string, index int) (string, error) {
	if s.publicEndpoint == "" {
		return "", ErrNoPublicEndpoint
	}
	publicURL, err := url.Parse(s.publicEndpoint)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return "", fmt.Errorf("invalid public endpoint: %s", s.publicEndpoint)
	}
	prefix := strings.TrimSuffix(publicURL.Path, "/")
	publicBaseEndpoint := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

	// the signature covers the Host header, so sign against the public host
	presignClient := s3.NewFromConfig(
		aws.Config{
			Region:      s.client.Options().Region,
			Credentials: s.client.Options().Credentials,
			HTTPClient:  s.client.Options().HTTPClient,
		},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(publicBaseEndpoint)
			o.UsePathStyle = true
		},
	)

	presigner := s3.NewPresignClient(presignClient)
	out, err := presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.PageKey(jobID, index)),
		},
		s3.WithPresignExpires(s.linkExpiry),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix != "" {
		signedURL, parseErr := url.Parse(out.URL)
		if parseErr != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", parseErr)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}
	return out.URL, nil
}

// Open prefers a presigned link. Without a public endpoint the page is
// downloaded so the server can pass it through.
func (s *S3Sink) Open(ctx context.Context, jobID string, index int) ([]byte, string, error) {
	link, err := s.Link(ctx, jobID, index)
	if err == nil {
		return nil, link, nil
	}
	if !errors.Is(err, ErrNoPublicEndpoint) {
		return nil, "", err
	}

	data, err := s.Get(ctx, jobID, index)
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, "", render.ErrPageNotFound
		}
		return nil, "", err
	}
	return data, "", nil
}

// DeleteJob removes every page stored for jobID.
func (s *S3Sink) DeleteJob(ctx context.Context, jobID string) error {
	folder := fmt.Sprintf("%s/%s/", s.prefix, jobID)
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(folder),
	}

	for {
		listOutput, err := s.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects in folder %s: %w", folder, err)
		}
		if len(listOutput.Contents) == 0 {
			break
		}

		objects := make([]types.ObjectIdentifier, 0, len(listOutput.Contents))
		for _, obj := range listOutput.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in folder %s: %w", folder, err)
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}
	return nil
}
