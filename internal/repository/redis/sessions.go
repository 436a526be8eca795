package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/repository"
)

const defaultSessionPrefix = "login:session"

type storedSession struct {
	UserID     int64     `json:"uid"`
	Login      string    `json:"login"`
	IssuedAt   time.Time `json:"iat"`
	ExpiresAt  time.Time `json:"exp"`
	Remember   bool      `json:"rem,omitempty"`
	SecureOnly bool      `json:"sec,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"ua,omitempty"`
}

// SessionStore keeps one key per session plus a per-user set of session ids so every
// session of a user can be destroyed at once.
type SessionStore struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewSessionStore constructs a Redis-backed session store.
func NewSessionStore(client *red.Client, keyPrefix string) *SessionStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &SessionStore{client: client, prefix: prefix, now: time.Now}
}

// Save stores the session until it expires.
func (s *SessionStore) Save(ctx context.Context, session domain.SessionToken) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	ttl := session.Remaining(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	payload, err := json.Marshal(storedSession{
		UserID:     session.UserID,
		Login:      session.Login,
		IssuedAt:   session.IssuedAt,
		ExpiresAt:  session.ExpiresAt,
		Remember:   session.Remember,
		SecureOnly: session.SecureOnly,
		IP:         session.IP,
		UserAgent:  session.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	userKey := s.userKey(session.UserID)
	current, err := s.client.TTL(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("redis ttl session index: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), payload, ttl)
		pipe.SAdd(ctx, userKey, session.ID)
		// The index lives as long as the longest session in it.
		if current < ttl {
			pipe.Expire(ctx, userKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Get loads a live session.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.SessionToken, error) {
	if sessionID == "" {
		return nil, repository.ErrNotFound
	}

	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &domain.SessionToken{
		ID:         sessionID,
		UserID:     stored.UserID,
		Login:      stored.Login,
		IssuedAt:   stored.IssuedAt,
		ExpiresAt:  stored.ExpiresAt,
		Remember:   stored.Remember,
		SecureOnly: stored.SecureOnly,
		IP:         stored.IP,
		UserAgent:  stored.UserAgent,
	}, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	session, err := s.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionID))
		if session != nil {
			pipe.SRem(ctx, s.userKey(session.UserID), sessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser destroys every session of the user.
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID int64) (int, error) {
	userKey := s.userKey(userID)

	ids, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}

	var removed *red.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		if len(keys) > 0 {
			removed = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis delete user sessions: %w", err)
	}
	if removed == nil {
		return 0, nil
	}
	return int(removed.Val()), nil
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *SessionStore) userKey(userID int64) string {
	return s.prefix + ":user:" + strconv.FormatInt(userID, 10)
}

var _ port.SessionStore = (*SessionStore)(nil)
