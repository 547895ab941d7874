package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type SecretSource interface {
	Access(ctx context.Context, name string) (string, error)
}

type SecretManager struct {
	client  *secretmanager.Client
	project string
}

func NewSecretManager(ctx context.Context, project string) (*SecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &SecretManager{client: client, project: project}, nil
}

func (s *SecretManager) Access(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

// Store adds value as the latest version of name, creating the secret
// with automatic replication the first time.
func (s *SecretManager) Store(ctx context.Context, name, value string) error {
	parent := "projects/" + s.project
	_, err := s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   parent,
		SecretId: name,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to create secret %s: %w", name, err)
	}

	_, err = s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  fmt.Sprintf("%s/secrets/%s", parent, name),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	})
	if err != nil {
		return fmt.Errorf("failed to add version to secret %s: %w", name, err)
	}
	return nil
}

func (s *SecretManager) Close() error {
	return s.client.Close()
}

// SecretName maps TELEGRAM_BOT_TOKEN to telegram-bot-token.
func SecretName(env string) string {
	return strings.ReplaceAll(strings.ToLower(env), "_", "-")
}

// resolveSecrets fills only the values the environment left empty.
func resolveSecrets(ctx context.Context, cfg *Config, src SecretSource) {
	fields := []struct {
		env string
		dst *string
	}{
		{"TELEGRAM_BOT_TOKEN", &cfg.TelegramToken},
		{"YOUTUBE_CLIENT_ID", &cfg.YouTubeClientID},
		{"YOUTUBE_CLIENT_SECRET", &cfg.YouTubeClientSecret},
		{"INSTAGRAM_ACCESS_TOKEN", &cfg.InstagramAccessToken},
		{"INSTAGRAM_USER_ID", &cfg.InstagramUserID},
		{"GROQ_API_KEY", &cfg.GroqAPIKey},
		{"GCS_BUCKET", &cfg.GCSBucket},
	}

	for _, f := range fields {
		if *f.dst != "" {
			continue
		}
		val, err := src.Access(ctx, SecretName(f.env))
		if err != nil {
			slog.Debug("Secret not resolved", "name", SecretName(f.env), "error", err)
			continue
		}
		*f.dst = val
	}
}
