package firebase

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

type Config struct {
	ProjectID       string `env:"FIREBASE_PROJECT_ID,required"`
	CredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	// Entitlement documents live here when ENTITLEMENT_STORE=firestore.
	Collection string `env:"FIRESTORE_ENTITLEMENTS_COLLECTION" envDefault:"entitlements"`
	// Checked on every request; costs one extra Auth API call.
	CheckRevoked bool `env:"FIREBASE_CHECK_REVOKED" envDefault:"false"`
}

// NewApp initializes the Admin SDK. Without a credentials file the SDK
// falls back to application default credentials.
func NewApp(ctx context.Context, cfg Config, opts ...option.ClientOption) (*firebase.App, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("%w: ProjectID is required", ErrInvalidConfig)
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, errors.Join(ErrInitFailed, err)
	}
	return app, nil
}

// Firestore returns the project's default database client.
func Firestore(ctx context.Context, app *firebase.App) (*firestore.Client, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, errors.Join(ErrInitFailed, err)
	}
	return client, nil
}
