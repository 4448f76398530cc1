package gmailsource

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mikey/jobmail/internal/config"
	"go.uber.org/zap"
)

// Factory creates Gmail mail sources
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new Gmail source factory
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateSource builds an authenticated read-only Gmail source. Token
// acquisition and refresh happen outside this program; we only consume
// a ready refresh token.
func (f *Factory) CreateSource(ctx context.Context) (*Source, error) {
	gmailCfg := f.cfg.GetGmail()
	if gmailCfg.ClientID == "" || gmailCfg.ClientSecret == "" || gmailCfg.RefreshToken == "" {
		return nil, fmt.Errorf("gmail client_id, client_secret and refresh_token are required")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     gmailCfg.ClientID,
		ClientSecret: gmailCfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: gmailCfg.RefreshToken})

	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	query := BuildQuery(gmailCfg.SubjectTerms, gmailCfg.AfterDate)
	f.logger.Info("Created Gmail source", zap.String("query", query))

	return NewSource(svc, query, gmailCfg.PageSize, f.logger), nil
}
