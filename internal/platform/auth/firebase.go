package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/orchidmarket/api/internal/platform/config"
)

// FirebaseVerifier verifies storefront ID tokens through the Firebase Admin
// SDK. Every SDK call runs under its own deadline so a slow token check never
// ties up a request for longer than the configured timeout.
type FirebaseVerifier struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseVerifier instances.
type FirebaseOption func(*FirebaseVerifier)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewFirebaseVerifier initialises the Admin SDK for the configured project.
// A credentials file is optional; without one the SDK falls back to
// application default credentials.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if credFile := strings.TrimSpace(cfg.CredentialsFile); credFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	verifier := &FirebaseVerifier{client: authClient, timeout: defaultVerifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier, nil
}

// VerifyIDToken checks the token signature and claims under a bounded context.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	return v.client.VerifyIDToken(ctx, idToken)
}
