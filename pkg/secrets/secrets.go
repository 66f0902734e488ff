package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// DBCredentials is the payload stored under the database secret.
type DBCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
}

// Source resolves database credentials once at startup. A missing or
// malformed secret is a fatal startup-class error for the calling stage.
type Source interface {
	Fetch(ctx context.Context) (DBCredentials, error)
}

type managerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSource reads a JSON credential secret from AWS Secrets Manager.
type AWSSource struct {
	client    managerAPI
	secretARN string
}

func NewAWSSource(ctx context.Context, secretARN string) (*AWSSource, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSSource{client: secretsmanager.NewFromConfig(cfg), secretARN: secretARN}, nil
}

func (s *AWSSource) Fetch(ctx context.Context) (DBCredentials, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &s.secretARN,
	})
	if err != nil {
		return DBCredentials{}, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return DBCredentials{}, errors.New("database secret not found")
	}
	return parse([]byte(*out.SecretString))
}

// StaticSource holds a literal JSON secret, used for local development and
// tests via DB_SECRET_JSON.
type StaticSource struct {
	raw []byte
}

func NewStaticSource(raw string) *StaticSource {
	return &StaticSource{raw: []byte(raw)}
}

func (s *StaticSource) Fetch(_ context.Context) (DBCredentials, error) {
	return parse(s.raw)
}

func parse(raw []byte) (DBCredentials, error) {
	var creds DBCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return DBCredentials{}, fmt.Errorf("malformed database secret: %w", err)
	}
	if creds.Username == "" || creds.DBName == "" {
		return DBCredentials{}, errors.New("database secret missing username or dbname")
	}
	if creds.Port == 0 {
		creds.Port = 5432
	}
	return creds, nil
}
