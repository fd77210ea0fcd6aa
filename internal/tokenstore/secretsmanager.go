package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// SecretsManagerStore keeps one secret per service/username under prefix.
type SecretsManagerStore struct {
	client SecretsManagerAPI
	prefix string
}

func NewSecretsManagerStore(client SecretsManagerAPI, prefix string) *SecretsManagerStore {
	return &SecretsManagerStore{client: client, prefix: prefix}
}

// NewSecretsManagerStoreFromConfig loads the default AWS configuration chain.
func NewSecretsManagerStoreFromConfig(ctx context.Context, region, prefix string) (*SecretsManagerStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSecretsManagerStore(secretsmanager.NewFromConfig(cfg), prefix), nil
}

func (s *SecretsManagerStore) secretID(service, username string) string {
	return s.prefix + key(service, username)
}

func (s *SecretsManagerStore) Get(ctx context.Context, service, username string) (string, error) {
	id := s.secretID(service, username)
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("fetching secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return "", ErrNotFound
	}
	return *out.SecretString, nil
}

func (s *SecretsManagerStore) Set(ctx context.Context, service, username, value string) error {
	id := s.secretID(service, username)
	_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(id),
		SecretString: aws.String(value),
	})
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("writing secret %s: %w", id, err)
	}

	_, err = s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(id),
		Description:  aws.String("ptitcal refresh token"),
		SecretString: aws.String(value),
	})
	if err != nil {
		return fmt.Errorf("creating secret %s: %w", id, err)
	}
	return nil
}
