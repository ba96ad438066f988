package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
)

// codeAlphabet is the character set of generated invite codes. Digits only,
// so codes survive being read out loud.
const codeAlphabet = "0123456789"

// acquireIdentity runs the identity negotiation state machine.
//
// Clients request an ephemeral identity; the invite code only matters for
// the later connect step. Hosts claim prefix+code and on collision walk
// the retry path: destroy the failed identity, wait out the settle delay
// so the stale remote registration can expire, generate a fresh code, and
// claim again. Collisions never surface to the caller unless the retry
// cap is exhausted; every other transport error is terminal.
func (s *Session) acquireIdentity(ctx context.Context, role Role, code string) (transport.Identity, string, error) {
	if role == RoleClient {
		ident, err := s.opts.Transport.CreateIdentity(ctx, s.opts.Assist)
		if err != nil {
			return nil, "", fmt.Errorf("acquire client identity: %w", err)
		}
		return ident, "", nil
	}

	attempt := 0
	for {
		if code == "" {
			var err error
			code, err = randomCode(s.opts.CodeLength)
			if err != nil {
				return nil, "", fmt.Errorf("generate invite code: %w", err)
			}
		}

		ident, err := s.opts.Transport.CreateIdentity(ctx, s.opts.Assist)
		if err != nil {
			return nil, "", fmt.Errorf("acquire host identity: %w", err)
		}

		claimErr := ident.Claim(ctx, s.opts.CodePrefix+code)
		if claimErr == nil {
			return ident, code, nil
		}

		// The failed identity is fully destroyed before any retry starts,
		// so two live identities never coexist.
		ident.Close()

		if !errors.Is(claimErr, transport.ErrIdentifierTaken) {
			return nil, "", fmt.Errorf("claim identity: %w", claimErr)
		}

		attempt++
		if s.opts.MaxCodeRetries > 0 && attempt > s.opts.MaxCodeRetries {
			return nil, "", fmt.Errorf("no free invite code after %d attempts: %w", attempt, claimErr)
		}

		s.logger.Warn().
			Str("code", code).
			Int("attempt", attempt).
			Msg("invite code taken, retrying with a fresh code")

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(s.opts.SettleDelay):
		}
		code = ""
	}
}

// randomCode generates an n-character invite code.
func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
