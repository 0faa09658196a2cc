package eventsub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

const signaturePrefix = "sha256="

// DefaultStaleWindow bounds how old a callback timestamp may be. Twitch
// retries failed deliveries for well under this, so anything older is a
// replay.
const DefaultStaleWindow = 10 * time.Minute

// Verifier authenticates inbound callbacks. The HMAC is computed over
// message ID + timestamp + raw body with the secret of the target
// subscription, so a rotated secret only affects callbacks signed after the
// rotation.
type Verifier struct {
	secrets     domain.SecretSource
	staleWindow time.Duration
	clock       clockwork.Clock
}

func NewVerifier(secrets domain.SecretSource, staleWindow time.Duration, clock clockwork.Clock) *Verifier {
	if staleWindow <= 0 {
		staleWindow = DefaultStaleWindow
	}
	return &Verifier{secrets: secrets, staleWindow: staleWindow, clock: clock}
}

// Verify checks the callback signature and timestamp. messageID, timestamp
// and signature are the raw header values; body is the unmodified request
// body. Returns domain.ErrTimestampStale or domain.ErrSignatureInvalid.
func (v *Verifier) Verify(ctx context.Context, subscriptionID, messageID, timestamp, signature string, body []byte) error {
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return fmt.Errorf("%w: unparseable timestamp %q", domain.ErrSignatureInvalid, timestamp)
	}

	if v.clock.Now().Sub(ts) > v.staleWindow {
		return domain.ErrTimestampStale
	}

	secret, err := v.secrets.Secret(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to resolve webhook secret: %w", err)
	}

	expected := ComputeSignature(secret, messageID, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// ComputeSignature returns the "sha256=<hex>" signature Twitch sends for the
// given inputs. Exported for the subscription handshake tests.
func ComputeSignature(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
