package security

import "time"

// KeyRotationWindow gates when a key version is allowed to serve decryption.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

// DecryptWindow is the span in which the key may open blobs: from creation
// until its retirement plus the grace window. An unretired key has no upper
// bound.
func (k Key) DecryptWindow(grace time.Duration) KeyRotationWindow {
	window := KeyRotationWindow{NotBefore: k.CreatedAt}
	if k.RetiredAt != nil {
		window.NotAfter = k.RetiredAt.UTC().Add(grace)
	}
	return window
}
