// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veil-im/veil/lib/clock"
	"github.com/veil-im/veil/lib/ref"
	"github.com/veil-im/veil/messaging"
)

// newSyncTestSession creates a DirectSession against a handler that
// serves /sync responses.
func newSyncTestSession(t *testing.T, handler http.HandlerFunc) messaging.Session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@veil:local"), "test-token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func writeSyncResponse(writer http.ResponseWriter, response messaging.SyncResponse) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(response)
}

func TestInitialSync(t *testing.T) {
	session := newSyncTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Query().Get("since") != "" {
			t.Errorf("initial sync must not send a since token, got %q", request.URL.Query().Get("since"))
		}
		writeSyncResponse(writer, messaging.SyncResponse{NextBatch: "s1"})
	})

	since, response, err := InitialSync(context.Background(), session, "")
	if err != nil {
		t.Fatalf("InitialSync failed: %v", err)
	}
	if since != "s1" {
		t.Errorf("since = %q, want %q", since, "s1")
	}
	if response == nil {
		t.Fatal("expected non-nil response")
	}
}

func TestRunSyncLoop(t *testing.T) {
	t.Run("advances since token and dispatches", func(t *testing.T) {
		var calls atomic.Int64
		session := newSyncTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
			n := calls.Add(1)
			expectedSince := map[int64]string{1: "s0", 2: "s1", 3: "s2"}[n]
			if expectedSince != "" && request.URL.Query().Get("since") != expectedSince {
				t.Errorf("call %d: since = %q, want %q", n, request.URL.Query().Get("since"), expectedSince)
			}
			writeSyncResponse(writer, messaging.SyncResponse{NextBatch: map[int64]string{1: "s1", 2: "s2", 3: "s3"}[n]})
		})

		ctx, cancel := context.WithCancel(context.Background())
		var handled atomic.Int64
		handler := func(ctx context.Context, response *messaging.SyncResponse) {
			if handled.Add(1) == 3 {
				cancel()
			}
		}

		RunSyncLoop(ctx, session, SyncConfig{Timeout: 1}, "s0", handler, clock.Real(), testLogger())

		if handled.Load() != 3 {
			t.Errorf("handler called %d times, want 3", handled.Load())
		}
	})

	t.Run("retries with backoff on error", func(t *testing.T) {
		var calls atomic.Int64
		session := newSyncTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
			if calls.Add(1) == 1 {
				writer.WriteHeader(http.StatusInternalServerError)
				writer.Write([]byte(`{"errcode":"M_UNKNOWN","error":"boom"}`))
				return
			}
			writeSyncResponse(writer, messaging.SyncResponse{NextBatch: "s1"})
		})

		ctx, cancel := context.WithCancel(context.Background())
		handler := func(ctx context.Context, response *messaging.SyncResponse) {
			cancel()
		}

		start := time.Now()
		RunSyncLoop(ctx, session, SyncConfig{Timeout: 1}, "s0", handler, clock.Real(), testLogger())

		if calls.Load() < 2 {
			t.Errorf("expected at least 2 sync calls (one failure, one success), got %d", calls.Load())
		}
		// The loop backs off 1 second after the first failure.
		if elapsed := time.Since(start); elapsed < time.Second {
			t.Errorf("expected at least 1s of backoff, loop finished in %v", elapsed)
		}
	})

	t.Run("returns on cancellation", func(t *testing.T) {
		session := newSyncTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
			writeSyncResponse(writer, messaging.SyncResponse{NextBatch: "s1"})
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan struct{})
		go func() {
			RunSyncLoop(ctx, session, SyncConfig{}, "s0", func(context.Context, *messaging.SyncResponse) {}, clock.Real(), testLogger())
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("RunSyncLoop did not return after cancellation")
		}
	})
}

func TestAcceptInvites(t *testing.T) {
	var joined atomic.Int64
	session := newSyncTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		joined.Add(1)
		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(map[string]string{"room_id": "!room1:local"})
	})

	invites := map[ref.RoomID]messaging.InvitedRoom{
		ref.MustParseRoomID("!room1:local"): {},
		ref.MustParseRoomID("!room2:local"): {},
	}

	accepted := AcceptInvites(context.Background(), session, invites, testLogger())
	if len(accepted) != 2 {
		t.Errorf("accepted %d invites, want 2", len(accepted))
	}
	if joined.Load() != 2 {
		t.Errorf("join endpoint called %d times, want 2", joined.Load())
	}
}
