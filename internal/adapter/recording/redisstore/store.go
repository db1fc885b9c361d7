// Package redisstore keeps transient recording sessions in Redis. Sessions
// and their chunk buffers expire with a TTL so abandoned recordings clean
// themselves up.
package redisstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// Store implements domain.RecordingStore on a Redis client.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New constructs a Store. A non-positive TTL falls back to 30 minutes.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func sessionKey(interviewID, questionID string) string {
	return "rec:" + interviewID + ":" + questionID
}

func chunksKey(interviewID, questionID string) string {
	return sessionKey(interviewID, questionID) + ":chunks"
}

// Get loads a session. Missing sessions map to domain.ErrNotFound.
func (s *Store) Get(ctx domain.Context, interviewID, questionID string) (domain.RecordingSession, error) {
	b, err := s.rdb.Get(ctx, sessionKey(interviewID, questionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RecordingSession{}, fmt.Errorf("%w: recording session %s:%s", domain.ErrNotFound, interviewID, questionID)
		}
		return domain.RecordingSession{}, fmt.Errorf("%w: get session: %v", domain.ErrPersistence, err)
	}
	var sess domain.RecordingSession
	if err := json.Unmarshal(b, &sess); err != nil {
		return domain.RecordingSession{}, fmt.Errorf("%w: decode session: %v", domain.ErrPersistence, err)
	}
	return sess, nil
}

// Put writes the session state and refreshes its TTL.
func (s *Store) Put(ctx domain.Context, sess domain.RecordingSession) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: encode session: %v", domain.ErrPersistence, err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.InterviewID, sess.QuestionID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: put session: %v", domain.ErrPersistence, err)
	}
	// Keep the chunk buffer alive for as long as the session.
	if err := s.rdb.Expire(ctx, chunksKey(sess.InterviewID, sess.QuestionID), s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: refresh chunk ttl: %v", domain.ErrPersistence, err)
	}
	return nil
}

// AppendChunk pushes one chunk onto the buffer in arrival order.
func (s *Store) AppendChunk(ctx domain.Context, interviewID, questionID string, chunk []byte) error {
	key := chunksKey(interviewID, questionID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, chunk)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: append chunk: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Blob concatenates the buffered chunks in arrival order.
func (s *Store) Blob(ctx domain.Context, interviewID, questionID string) ([]byte, error) {
	chunks, err := s.rdb.LRange(ctx, chunksKey(interviewID, questionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read chunks: %v", domain.ErrPersistence, err)
	}
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	blob := make([]byte, 0, total)
	for _, c := range chunks {
		blob = append(blob, c...)
	}
	return blob, nil
}

// Delete removes the session and its chunk buffer.
func (s *Store) Delete(ctx domain.Context, interviewID, questionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(interviewID, questionID), chunksKey(interviewID, questionID)).Err(); err != nil {
		return fmt.Errorf("%w: delete session: %v", domain.ErrPersistence, err)
	}
	return nil
}
