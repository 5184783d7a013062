package langrouter

import "context"

// Provider is a pluggable language-identification backend scored per token.
// Implementations must honor the context deadline and must not panic into
// the router; a nil prediction means "no opinion".
type Provider interface {
	Name() string
	Version() string
	// Predict returns the most likely language code and a confidence in
	// [0, 1] for one token, or ok=false when the provider has no prediction.
	Predict(ctx context.Context, token string) (lang string, confidence float64, ok bool)
}
