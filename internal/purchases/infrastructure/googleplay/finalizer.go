// Package googleplay finalizes purchases through the Google Play Developer API,
// for deployments where the service, not the device, owns the store session.
package googleplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/internal/shared/infrastructure/security"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/option"
)

// Config configures the finalizer.
type Config struct {
	PackageName string
	// ServiceAccountJSON is the key itself or a path to the key file.
	ServiceAccountJSON string
	// TokenSource, when set, is used instead of the service account key.
	TokenSource oauth2.TokenSource
}

// Finalizer implements domain.Finalizer with the androidpublisher API.
type Finalizer struct {
	packageName string
	svc         *androidpublisher.Service
	logger      *slog.Logger
}

// NewFinalizer creates a finalizer. Extra client options are appended
// after the credentials, so callers can point it at another endpoint.
func NewFinalizer(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Finalizer, error) {
	cfg.PackageName = strings.TrimSpace(cfg.PackageName)
	if cfg.PackageName == "" {
		return nil, errors.New("GOOGLE_PLAY_PACKAGE_NAME is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []option.ClientOption
	key := strings.TrimSpace(cfg.ServiceAccountJSON)
	switch {
	case cfg.TokenSource != nil:
		clientOpts = append(clientOpts, option.WithTokenSource(cfg.TokenSource))
	case key != "":
		data, err := credentialsJSON(key)
		if err != nil {
			return nil, err
		}
		creds, err := google.CredentialsFromJSON(ctx, data, androidpublisher.AndroidpublisherScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(creds.TokenSource))
	case len(opts) == 0:
		return nil, errors.New("GOOGLE_PLAY_SERVICE_ACCOUNT_JSON is empty")
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := androidpublisher.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("androidpublisher.NewService: %w", err)
	}

	return &Finalizer{
		packageName: cfg.PackageName,
		svc:         svc,
		logger:      logger.With("component", "googleplay"),
	}, nil
}

func credentialsJSON(value string) ([]byte, error) {
	if strings.HasPrefix(value, "{") {
		return []byte(value), nil
	}
	data, err := security.ReadConfigFile(value)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}
	return data, nil
}

func (f *Finalizer) packageFor(p domain.PlatformPurchase) string {
	if p.PackageName != "" {
		return p.PackageName
	}
	return f.packageName
}

func validate(p domain.PlatformPurchase) error {
	if strings.TrimSpace(p.ProductID) == "" || strings.TrimSpace(p.PurchaseToken) == "" {
		return errors.New("product_id and purchase_token are required")
	}
	return nil
}

// Consume consumes a one-time product so it can be bought again.
func (f *Finalizer) Consume(ctx context.Context, p domain.PlatformPurchase) error {
	if err := validate(p); err != nil {
		return err
	}
	if err := f.svc.Purchases.Products.Consume(f.packageFor(p), p.ProductID, p.PurchaseToken).
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("google products.consume: %w", err)
	}
	f.logger.Debug("purchase consumed", "store_id", p.ProductID)
	return nil
}

// Acknowledge acknowledges a product or subscription purchase.
func (f *Finalizer) Acknowledge(ctx context.Context, p domain.PlatformPurchase, kind domain.ProductKind) error {
	if err := validate(p); err != nil {
		return err
	}

	var err error
	switch kind {
	case domain.KindSubscription:
		req := &androidpublisher.SubscriptionPurchasesAcknowledgeRequest{}
		err = f.svc.Purchases.Subscriptions.Acknowledge(f.packageFor(p), p.ProductID, p.PurchaseToken, req).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("google subscriptions.acknowledge: %w", err)
		}
	default:
		req := &androidpublisher.ProductPurchasesAcknowledgeRequest{}
		err = f.svc.Purchases.Products.Acknowledge(f.packageFor(p), p.ProductID, p.PurchaseToken, req).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("google products.acknowledge: %w", err)
		}
	}
	f.logger.Debug("purchase acknowledged", "store_id", p.ProductID, "kind", kind)
	return nil
}

var _ domain.Finalizer = (*Finalizer)(nil)
