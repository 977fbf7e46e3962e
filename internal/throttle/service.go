// Package throttle tracks failed logins per identity and escalates through
// warnings into a timed lockout.
package throttle

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"guestboard/internal/kv"
)

const (
	failuresKeyFmt = "failures:%s"
	lockoutKeyFmt  = "lockout:%s"
)

// Status classifies the outcome of an authentication attempt.
type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusNormal   Status = "NORMAL"
	StatusWarning1 Status = "WARNING1"
	StatusWarning2 Status = "WARNING2"
	StatusLocked   Status = "LOCKED"
)

// Outcome carries the attempt classification, the consecutive failure count,
// and the lockout expiry when Status is StatusLocked.
type Outcome struct {
	Status      Status
	Count       int
	LockedUntil time.Time
}

// Options configures the throttle.
type Options struct {
	// Password is the primary shared secret. When PasswordHash is set it
	// takes precedence and Password is ignored.
	Password     string
	PasswordHash string
	// AdminSecret is the override credential; it succeeds even mid-lockout.
	AdminSecret      string
	Warn1            int
	Warn2            int
	BanAt            int
	BanDuration      time.Duration
	FailureRetention time.Duration
}

// Service verifies the shared secret and walks each identity through
// Clean -> Accumulating -> Locked -> Clean. State lives in the store under
// TTL-bounded keys, so an untouched failure record ages out on its own.
type Service struct {
	store kv.Store
	opts  Options
	now   func() time.Time
}

// New creates a login throttle on top of the given store
func New(store kv.Store, opts Options) *Service {
	if opts.Warn1 <= 0 {
		opts.Warn1 = 5
	}
	if opts.Warn2 <= 0 {
		opts.Warn2 = 8
	}
	if opts.BanAt <= 0 {
		opts.BanAt = 10
	}
	if opts.BanDuration <= 0 {
		opts.BanDuration = 24 * time.Hour
	}
	if opts.FailureRetention <= 0 {
		opts.FailureRetention = 72 * time.Hour
	}
	return &Service{store: store, opts: opts, now: time.Now}
}

// Authenticate checks submittedSecret for the given identity hash. An active
// lockout rejects the attempt before the credential is even looked at; only
// the admin override can cut through it.
func (s *Service) Authenticate(ctx context.Context, identityHash, submittedSecret string) (Outcome, error) {
	now := s.now()

	if s.isOverride(submittedSecret) {
		if err := s.clear(ctx, identityHash); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusSuccess}, nil
	}

	lockedUntil, err := s.lockoutExpiry(ctx, identityHash)
	if err != nil {
		return Outcome{}, err
	}
	if !lockedUntil.IsZero() {
		if lockedUntil.After(now) {
			count, err := s.failureCount(ctx, identityHash)
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Status: StatusLocked, Count: count, LockedUntil: lockedUntil}, nil
		}
		// Expired lockout: wipe it and start the count over
		if err := s.clear(ctx, identityHash); err != nil {
			return Outcome{}, err
		}
	}

	if s.isPrimary(submittedSecret) {
		if err := s.clear(ctx, identityHash); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusSuccess}, nil
	}

	count, err := s.failureCount(ctx, identityHash)
	if err != nil {
		return Outcome{}, err
	}
	count++
	if err := s.store.Put(ctx, failuresKey(identityHash), strconv.Itoa(count), s.opts.FailureRetention); err != nil {
		return Outcome{}, err
	}

	switch {
	case count >= s.opts.BanAt:
		until := now.Add(s.opts.BanDuration)
		if err := s.store.Put(ctx, lockoutKey(identityHash), until.UTC().Format(time.RFC3339), s.opts.BanDuration); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusLocked, Count: count, LockedUntil: until}, nil
	case count >= s.opts.Warn2:
		return Outcome{Status: StatusWarning2, Count: count}, nil
	case count >= s.opts.Warn1:
		return Outcome{Status: StatusWarning1, Count: count}, nil
	default:
		return Outcome{Status: StatusNormal, Count: count}, nil
	}
}

func (s *Service) isPrimary(secret string) bool {
	if s.opts.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.opts.PasswordHash), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.Password)) == 1
}

func (s *Service) isOverride(secret string) bool {
	if s.opts.AdminSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.AdminSecret)) == 1
}

func (s *Service) clear(ctx context.Context, identityHash string) error {
	if err := s.store.Delete(ctx, failuresKey(identityHash)); err != nil {
		return err
	}
	return s.store.Delete(ctx, lockoutKey(identityHash))
}

func (s *Service) failureCount(ctx context.Context, identityHash string) (int, error) {
	raw, err := s.store.Get(ctx, failuresKey(identityHash))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		// A mangled record counts as no failures rather than a crash
		return 0, nil
	}
	return count, nil
}

func (s *Service) lockoutExpiry(ctx context.Context, identityHash string) (time.Time, error) {
	raw, err := s.store.Get(ctx, lockoutKey(identityHash))
	if errors.Is(err, kv.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	expiry, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return expiry, nil
}

func failuresKey(hash string) string { return fmt.Sprintf(failuresKeyFmt, hash) }
func lockoutKey(hash string) string  { return fmt.Sprintf(lockoutKeyFmt, hash) }
