package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/pbaille/folio/internal/config"
	"github.com/pbaille/folio/internal/logging"
)

// SecretsAPI is the Secrets Manager call used to fetch service-account keys
type SecretsAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// ErrNoCredentials means no credential source was configured or found
var ErrNoCredentials = errors.New("no service account credentials")

// NewSecretsClient builds a Secrets Manager client from the default AWS chain
func NewSecretsClient(ctx context.Context, region string) (*secretsmanager.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// ResolveCredentials returns the service-account key JSON from the first configured source:
// the inline environment value, then the Secrets Manager secret, then the key file.
// secrets may be nil when no secret is configured.
func ResolveCredentials(ctx context.Context, cfg *config.Config, secrets SecretsAPI) ([]byte, error) {
	if cfg.ServiceAccountJSON != "" {
		logging.Info("using service account from environment")
		return checkKey([]byte(cfg.ServiceAccountJSON), "environment")
	}

	if cfg.ServiceAccountARN != "" {
		if secrets == nil {
			return nil, fmt.Errorf("resolve credentials: secret %s configured without a secrets client", cfg.ServiceAccountARN)
		}
		out, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(cfg.ServiceAccountARN),
		})
		if err != nil {
			return nil, fmt.Errorf("get secret %s: %w", cfg.ServiceAccountARN, err)
		}
		logging.Info("using service account from secrets manager", logging.String("secret", cfg.ServiceAccountARN))
		if out.SecretString != nil {
			return checkKey([]byte(*out.SecretString), "secret")
		}
		return checkKey(out.SecretBinary, "secret")
	}

	if cfg.ServiceAccountFile != "" {
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err == nil {
			logging.Info("using service account from file", logging.String("path", cfg.ServiceAccountFile))
			return checkKey(data, cfg.ServiceAccountFile)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read key file: %w", err)
		}
	}

	return nil, ErrNoCredentials
}

func checkKey(data []byte, source string) ([]byte, error) {
	var key struct {
		Type        string `json:"type"`
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("decode service account from %s: %w", source, err)
	}
	if key.ClientEmail == "" {
		return nil, fmt.Errorf("service account from %s has no client_email", source)
	}
	return data, nil
}
