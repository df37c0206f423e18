package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

func TestRoomStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRoomStore(client, time.Minute)

	if err := store.Add(app.NewRoom("4242", sampleQuiz(), app.Options{})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !mr.Exists("trivia:room:4242") {
		t.Fatalf("expected redis key to be set")
	}
	if err := store.Touch(context.Background()); err != nil {
		t.Fatalf("touch: %v", err)
	}

	store.Delete("4242")
	if mr.Exists("trivia:room:4242") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestRoomStoreRefusesClaimedCode(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	if err := mr.Set("trivia:room:1111", "1"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	store := NewRoomStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)

	err = store.Add(app.NewRoom("1111", sampleQuiz(), app.Options{}))
	if !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected claimed code refused, got %v", err)
	}
}
