package core

import (
	"context"
	"errors"
	"time"
)

var ErrKeyRotatorNotConfigured = errors.New("core: key rotator not configured")

// KeyRotationResult describes one completed rotation.
type KeyRotationResult struct {
	OldVersion int
	NewVersion int
	RetiredAt  time.Time
}

// KeyRotationDue reports whether the active key is older than the configured
// rotation interval.
func (s *Service) KeyRotationDue(now time.Time) (bool, error) {
	if s == nil || s.keyRotator == nil {
		return false, ErrKeyRotatorNotConfigured
	}
	if s.config.KeyRotationInterval <= 0 {
		return false, nil
	}
	createdAt := s.keyRotator.ActiveKeyCreatedAt()
	if createdAt.IsZero() {
		return false, nil
	}
	return now.UTC().Sub(createdAt.UTC()) >= s.config.KeyRotationInterval, nil
}

// RotateKeys mints the next key version and retires the prior one into its
// grace window. Blobs are not re-encrypted here; each re-seals on its next
// decrypt.
func (s *Service) RotateKeys(ctx context.Context) (result KeyRotationResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		err = s.mapError(err)
		s.observeOperation(ctx, startedAt, "rotate_keys", err, fields)
	}()

	if s.keyRotator == nil {
		return KeyRotationResult{}, ErrKeyRotatorNotConfigured
	}
	oldVersion, newVersion, retiredAt, err := s.keyRotator.Rotate(ctx)
	if err != nil {
		return KeyRotationResult{}, err
	}
	fields["old_version"] = oldVersion
	fields["new_version"] = newVersion
	s.emitEvent(ctx, NewKeyRotatedEvent(oldVersion, newVersion, retiredAt))
	return KeyRotationResult{
		OldVersion: oldVersion,
		NewVersion: newVersion,
		RetiredAt:  retiredAt,
	}, nil
}

// PurgeExpiredKeys destroys the material of retired keys past their grace
// window. Blobs still sealed under a purged version become unreadable and
// surface as unknown-key-version on decrypt.
func (s *Service) PurgeExpiredKeys(ctx context.Context) (purged []int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		err = s.mapError(err)
		fields["purged"] = len(purged)
		s.observeOperation(ctx, startedAt, "purge_expired_keys", err, fields)
	}()

	if s.keyRotator == nil {
		return nil, ErrKeyRotatorNotConfigured
	}
	purged, err = s.keyRotator.PurgeExpired(ctx)
	if err != nil {
		return nil, err
	}
	return purged, nil
}
