package historical

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ObjectDownloader downloads one S3 object into w.
type ObjectDownloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// S3Config locates price objects. Each asset is stored as <Prefix>/<asset>.csv
// with a "date,close" header.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional, for S3-compatible stores
	AccessKeyID     string // optional, falls back to the default credential chain
	SecretAccessKey string
}

// S3Source reads per-asset price files from an S3 bucket.
type S3Source struct {
	downloader ObjectDownloader
	bucket     string
	prefix     string
	log        zerolog.Logger
}

// NewS3Source builds an S3 client from cfg and wraps it in a price source.
func NewS3Source(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Source, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3SourceWithDownloader(manager.NewDownloader(client), cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3SourceWithDownloader creates a source over an existing downloader.
func NewS3SourceWithDownloader(downloader ObjectDownloader, bucket, prefix string, log zerolog.Logger) *S3Source {
	return &S3Source{
		downloader: downloader,
		bucket:     bucket,
		prefix:     prefix,
		log:        log.With().Str("source", "s3").Str("bucket", bucket).Logger(),
	}
}

// Fetch implements optimization.PriceSource.
func (s *S3Source) Fetch(ctx context.Context, assetIDs []string, start, end time.Time) (domain.PriceTable, error) {
	series := make([]domain.PriceSeries, len(assetIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range assetIDs {
		i, id := i, id
		g.Go(func() error {
			key := s.objectKey(id)
			buf := manager.NewWriteAtBuffer(nil)
			if _, err := s.downloader.Download(gctx, buf, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			}); err != nil {
				return fmt.Errorf("download s3://%s/%s: %w", s.bucket, key, err)
			}

			parsed, err := ParseSeriesCSV(id, bytes.NewReader(buf.Bytes()))
			if err != nil {
				return fmt.Errorf("parse s3://%s/%s: %w", s.bucket, key, err)
			}
			parsed.Points = filterRange(parsed.Points, start, end)
			series[i] = parsed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.PriceTable{}, err
	}

	table := domain.AlignSeries(series)
	s.log.Debug().Strs("assets", assetIDs).Int("rows", table.Rows()).Msg("Loaded price files")
	return table, nil
}

func (s *S3Source) objectKey(assetID string) string {
	return path.Join(s.prefix, assetID+".csv")
}
