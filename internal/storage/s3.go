// s3.go — чтение legacy-блобов из S3.
// Записи, созданные до миграции на content-addressed storage, хранят
// в storage_locator путь-ключ S3-бакета. Новые записи сюда не пишутся.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/arturkryukov/datavault/internal/apperr"
)

// s3API — используемое подмножество S3-клиента (для подмены в тестах).
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store — legacy-хранилище (реализует LegacyFetcher).
type S3Store struct {
	client s3API
	bucket string
	logger *slog.Logger
}

// NewS3Store создаёт legacy-хранилище.
// Креденшелы берутся из стандартной цепочки AWS SDK (env, профиль, IAM).
func NewS3Store(ctx context.Context, bucket, region string, logger *slog.Logger) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("загрузка AWS-конфигурации: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		logger: logger.With(slog.String("component", "legacy_store")),
	}, nil
}

// Fetch читает legacy-блоб по ключу бакета.
func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, apperr.Wrap(apperr.KindStorage, "блоб не найден в legacy-хранилище", err)
		}
		return nil, apperr.Wrap(apperr.KindStorage, "legacy-хранилище недоступно", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "ошибка чтения legacy-блоба", err)
	}

	s.logger.Debug("Legacy-блоб прочитан",
		slog.String("key", key),
		slog.Int("size", len(data)),
	)
	return data, nil
}
