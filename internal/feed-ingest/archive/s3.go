// Package archive grava as mensagens cruas do fornecedor num bucket S3 (ou
// compatível: MinIO, localstack) para auditoria e replay.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Bucket   string
	Region   string
	Endpoint string // vazio = AWS

	// Credenciais estáticas; vazias usam a cadeia padrão da AWS
	AccessKey string
	SecretKey string
}

// putter é o subconjunto do cliente S3 usado aqui.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archive struct {
	client putter
	bucket string
}

func New(ctx context.Context, cfg Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" {
			endpoint = "http://" + endpoint
		}
		// endpoints compatíveis exigem path-style
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Archive{client: s3.NewFromConfig(awsCfg, s3Opts...), bucket: cfg.Bucket}, nil
}

// Key monta o caminho do objeto particionado por dia e partida:
// feed/2026/03/14/<match>/<unixnano>-<tipo>.xml
func Key(matchID, msgType string, at time.Time) string {
	if matchID == "" {
		matchID = "unknown"
	}
	at = at.UTC()
	return fmt.Sprintf("feed/%s/%s/%d-%s.xml", at.Format("2006/01/02"), url.PathEscape(matchID), at.UnixNano(), msgType)
}

// Put grava raw na chave informada.
func (a *S3Archive) Put(ctx context.Context, key string, raw []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/xml"),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}
