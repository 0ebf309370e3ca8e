// Package invite manages one-day invite codes stored in the key-value
// store, mapping code to the issuing actor's id.
package invite

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/kv"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	codeLength   = 12
	codeTTL      = 24 * time.Hour
)

// Service issues and validates invite codes.
type Service struct {
	store kv.Store
}

// New creates an invite service over store.
func New(store kv.Store) *Service {
	return &Service{store: store}
}

// generateCode returns a random code over the alphanumeric alphabet.
func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("invite: random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Create issues a code for actorID, valid for 24 hours.
func (s *Service) Create(ctx context.Context, actorID string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, code, []byte(actorID), codeTTL); err != nil {
		return "", fmt.Errorf("invite: store code: %w", err)
	}
	return code, nil
}

// Validate returns the issuing actor id for code, or ok=false when the
// code is unknown or expired.
func (s *Service) Validate(ctx context.Context, code string) (actorID string, ok bool, err error) {
	raw, err := s.store.Get(ctx, code)
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("invite: lookup code: %w", err)
	}
	return string(raw), true, nil
}

// Delete revokes a code.
func (s *Service) Delete(ctx context.Context, code string) error {
	if err := s.store.Delete(ctx, code); err != nil {
		return fmt.Errorf("invite: delete code: %w", err)
	}
	return nil
}
