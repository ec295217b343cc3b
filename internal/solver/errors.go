package solver

import "errors"

var (
	// ErrCancelled means the session record was removed while solving. The
	// caller cleans up silently; the operator asked for this.
	ErrCancelled = errors.New("session cancelled")

	// ErrShutdown means the process is going down mid-session. Unlike an
	// operator cancel, the caller should say why the session ended.
	ErrShutdown = errors.New("service shutting down")

	// ErrTimeout means the challenge deadline elapsed without completion.
	ErrTimeout = errors.New("challenge deadline elapsed")

	// ErrVerificationRejected means submission did not yield a direct link.
	ErrVerificationRejected = errors.New("verification rejected")

	// ErrVariantUnsupported means the site kept serving the multi-step
	// challenge variant, which has no single puzzle image to publish.
	ErrVariantUnsupported = errors.New("challenge variant unsupported")

	// ErrChallengeUnavailable means the challenge widget never reached a
	// usable state within the allowed reloads.
	ErrChallengeUnavailable = errors.New("challenge unavailable")
)

// node-local conditions absorbed by the setup reload loop
var (
	errSetupTransient = errors.New("challenge not ready")
	errSetupVariant   = errors.New("multi-step challenge served")
)
