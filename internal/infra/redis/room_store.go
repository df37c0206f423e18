package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Notes:
//   - Rooms themselves live in a local map; their state never leaves the process.
//   - Redis holds a liveness key per room code so codes stay unique while a
//     room is live, and so operators can list live rooms.
//   - Redis failures degrade to local-only bookkeeping.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rooms  map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

func (s *RoomStore) Add(room *app.Room) error {
	code := room.Code()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; ok {
		return domain.ErrRoomExists
	}

	claimed, err := s.client.SetNX(context.Background(), s.key(code), "1", s.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("room", code).Msg("redis liveness marker failed")
	} else if !claimed {
		return domain.ErrRoomExists
	}
	s.rooms[code] = room
	return nil
}

func (s *RoomStore) Get(code string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return
	}
	delete(s.rooms, code)
	if err := s.client.Del(context.Background(), s.key(code)).Err(); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("redis liveness cleanup failed")
	}
}

func (s *RoomStore) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Touch extends the liveness keys of every local room.
func (s *RoomStore) Touch(ctx context.Context) error {
	pipe := s.client.Pipeline()
	for _, code := range s.Codes() {
		pipe.Expire(ctx, s.key(code), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RoomStore) key(code string) string {
	return "trivia:room:" + code
}
