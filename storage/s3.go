package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"trackdeck/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client erstellt einen S3-Client für Strato HiDrive (Export-Snapshots
// und Backups).
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.StratoS3URL,
				SigningRegion:     cfg.StratoS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.StratoS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.StratoS3Key, cfg.StratoS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// SnapshotKey bildet den Objekt-Schlüssel eines CSV-Export-Snapshots.
// Snapshots liegen unter exports/, getrennt vom backups/-Prefix der
// Datenbank-Backups.
func SnapshotKey(slug string, t time.Time) string {
	return fmt.Sprintf("exports/%s-%s.csv", slug, t.UTC().Format("2006-01-02T15-04-05Z"))
}

// UploadSnapshot lädt einen CSV-Snapshot eines Trackers hoch und gibt den
// Link zurück.
func UploadSnapshot(client *s3.Client, cfg *config.Config, slug string, data []byte) (string, error) {
	return UploadFile(client, cfg.StratoS3Bucket, SnapshotKey(slug, time.Now()), data, cfg)
}

// UploadFile lädt eine Datei ins S3 hoch und gibt den Link zurück.
func UploadFile(client *s3.Client, bucket, key string, data []byte, cfg *config.Config) (string, error) {
	_, err := client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/%s/%s", cfg.StratoS3URL, bucket, key)
	return link, nil
}
