package blacklist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tokensentry/tokensentry/pkg/store"
)

// KeyPrefix is the store namespace holding blacklist entries. It is separate
// from the rules' windowed counters so operator writes never collide with
// detection state.
const KeyPrefix = "blacklist:"

// DefaultTTL bounds how long an entry stays active without being re-added.
const DefaultTTL = 24 * time.Hour

// Entry is the stored record for one blacklisted token id.
type Entry struct {
	Jti     string    `json:"jti"`
	Reason  string    `json:"reason,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Manager is the operator-facing surface for the token blacklist. It writes
// out-of-band into the same store the rules read, so an added token id takes
// effect on the very next request.
type Manager struct {
	store        store.Store
	ttl          time.Duration
	logger       *logrus.Logger
	timeProvider func() time.Time
}

type ManagerOpts struct {
	TTL          time.Duration
	TimeProvider func() time.Time
}

func NewManager(s store.Store, logger *logrus.Logger, opts *ManagerOpts) *Manager {
	ttl := DefaultTTL
	timeProvider := time.Now
	if opts != nil {
		if opts.TTL > 0 {
			ttl = opts.TTL
		}
		if opts.TimeProvider != nil {
			timeProvider = opts.TimeProvider
		}
	}
	return &Manager{store: s, ttl: ttl, logger: logger, timeProvider: timeProvider}
}

// Add blacklists a token id. Re-adding refreshes the TTL.
func (m *Manager) Add(ctx context.Context, jti, reason string) error {
	if jti == "" {
		return fmt.Errorf("jti is required")
	}
	entry := Entry{Jti: jti, Reason: reason, AddedAt: m.timeProvider()}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode blacklist entry: %w", err)
	}
	if err := m.store.Set(ctx, KeyPrefix+jti, string(payload), m.ttl); err != nil {
		return fmt.Errorf("failed to store blacklist entry: %w", err)
	}
	m.logger.WithFields(logrus.Fields{
		"jti":    jti,
		"reason": reason,
	}).Info("token added to blacklist")
	return nil
}

// Remove drops a token id from the blacklist.
func (m *Manager) Remove(ctx context.Context, jti string) error {
	if jti == "" {
		return fmt.Errorf("jti is required")
	}
	if err := m.store.Delete(ctx, KeyPrefix+jti); err != nil {
		return fmt.Errorf("failed to remove blacklist entry: %w", err)
	}
	m.logger.WithField("jti", jti).Info("token removed from blacklist")
	return nil
}

// IsBlacklisted reports whether the token id currently has a live entry.
func (m *Manager) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	_, ok, err := m.store.Get(ctx, KeyPrefix+jti)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ListAll returns the token ids with live entries.
func (m *Manager) ListAll(ctx context.Context) ([]string, error) {
	keys, err := m.store.Keys(ctx, KeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	jtis := make([]string, 0, len(keys))
	for _, key := range keys {
		jtis = append(jtis, strings.TrimPrefix(key, KeyPrefix))
	}
	return jtis, nil
}
