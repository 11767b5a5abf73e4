package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

// GetSecretValue retrieves a secret from AWS Secrets Manager
func GetSecretValue(ctx context.Context, secretName, region string) (string, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return "", fmt.Errorf("unable to create AWS session: %w", err)
	}

	client := secretsmanager.New(sess)

	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	}

	result, err := client.GetSecretValueWithContext(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret: %w", err)
	}

	// Secrets Manager can store secrets as SecretString or SecretBinary
	var secretString string
	if result.SecretString != nil {
		secretString = *result.SecretString
	} else {
		return "", fmt.Errorf("secret is stored as binary, expected string")
	}

	return secretString, nil
}

// GetWalletMasterKey retrieves the hex-encoded master key used to encrypt
// per-payment wallet keys. The environment variable takes precedence for
// local development; production deployments keep it in Secrets Manager.
// The returned value must never be logged.
func GetWalletMasterKey(ctx context.Context, region string) (string, error) {
	if key := getEnv("WALLET_MASTER_KEY", ""); key != "" {
		return key, nil
	}

	secretName := "stackspay/wallet-master-key"
	key, err := GetSecretValue(ctx, secretName, region)
	if err != nil {
		return "", fmt.Errorf("failed to get wallet master key: %w", err)
	}

	return key, nil
}
