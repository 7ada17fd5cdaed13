package auth

import "context"

// Authorizer is the external identity provider.
type Authorizer interface {
	// BeginAuthorization returns the URL the user must visit. flowID is
	// carried through the provider so its callback can be matched to the
	// flow. Safe to retry.
	BeginAuthorization(ctx context.Context, userID, flowID string) (string, error)

	// CheckAuthorizationStatus reports whether userID holds a usable grant.
	// It is polled and must be cheap.
	CheckAuthorizationStatus(ctx context.Context, userID string) (bool, error)
}

// SurfaceOpener opens and closes the browser surface hosting the
// authorization page.
type SurfaceOpener interface {
	Open(ctx context.Context, url string) (string, error)

	// Close is best effort. Surfaces that cannot be closed stay open and
	// their completion signal becomes a no-op.
	Close(ctx context.Context, surfaceID string) error
}
