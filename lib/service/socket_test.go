// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/veil-im/veil/lib/codec"
	"github.com/veil-im/veil/lib/testutil"
)

// sendRequest connects to a Unix socket, sends a CBOR request, and
// returns the decoded response envelope.
func sendRequest(t *testing.T, socketPath string, request any) Response {
	t.Helper()

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to socket: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	// Signal that we're done writing (half-close). CBOR is self-
	// delimiting so this isn't required by the protocol, but it's
	// good hygiene.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}

// decodeData unmarshals the Data field of a response into the given
// target. Fails the test if decoding fails.
func decodeData(t *testing.T, response Response, target any) {
	t.Helper()
	if len(response.Data) == 0 {
		t.Fatal("response has no data to decode")
	}
	if err := codec.Unmarshal(response.Data, target); err != nil {
		t.Fatalf("decoding response data: %v", err)
	}
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(testutil.SocketDir(t), "test.sock")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// startServer runs the server in a goroutine and waits for the socket
// file to appear. Returns a cancel function that also waits for Serve
// to return.
func startServer(t *testing.T, server *SocketServer) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()

	waitForSocket(t, server.socketPath)
	return func() {
		cancel()
		wg.Wait()
	}
}

func TestSocketServerStats(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	server.Handle("stats", func(ctx context.Context, raw []byte) (any, error) {
		return map[string]any{
			"uptime_seconds": 42,
			"handles":        3,
		}, nil
	})

	stop := startServer(t, server)
	defer stop()

	response := sendRequest(t, socketPath, map[string]string{"action": "stats"})

	if !response.OK {
		t.Errorf("expected ok=true, got false")
	}

	var data map[string]any
	decodeData(t, response, &data)
	if data["uptime_seconds"] != uint64(42) {
		t.Errorf("expected uptime_seconds=42, got %v (%T)", data["uptime_seconds"], data["uptime_seconds"])
	}
	if data["handles"] != uint64(3) {
		t.Errorf("expected handles=3, got %v (%T)", data["handles"], data["handles"])
	}
}

func TestSocketServerUnknownAction(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	server.Handle("stats", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	stop := startServer(t, server)
	defer stop()

	response := sendRequest(t, socketPath, map[string]string{"action": "nonexistent"})

	if response.OK {
		t.Errorf("expected ok=false, got true")
	}
	if response.Error == "" {
		t.Error("expected error message for unknown action")
	}
}

func TestSocketServerMissingAction(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	stop := startServer(t, server)
	defer stop()

	response := sendRequest(t, socketPath, map[string]string{"foo": "bar"})

	if response.OK {
		t.Errorf("expected ok=false, got true")
	}
}

func TestSocketServerInvalidCBOR(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	stop := startServer(t, server)
	defer stop()

	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer conn.Close()

	// Send garbage bytes that aren't valid CBOR.
	conn.Write([]byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb})

	// Half-close so the server sees EOF after our bytes.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if response.OK {
		t.Errorf("expected ok=false for invalid CBOR, got true")
	}
}

func TestSocketServerHandlerError(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, fmt.Errorf("something broke")
	})

	stop := startServer(t, server)
	defer stop()

	response := sendRequest(t, socketPath, map[string]string{"action": "fail"})

	if response.OK {
		t.Errorf("expected ok=false, got true")
	}
	if response.Error != "something broke" {
		t.Errorf("expected error='something broke', got %q", response.Error)
	}
}

func TestSocketServerNilResult(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	server.Handle("ping", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	stop := startServer(t, server)
	defer stop()

	response := sendRequest(t, socketPath, map[string]string{"action": "ping"})

	if !response.OK {
		t.Errorf("expected ok=true, got false")
	}
	// Should have no data.
	if len(response.Data) != 0 {
		t.Errorf("expected no data in response, got %d bytes", len(response.Data))
	}
}

func TestSocketServerConcurrentRequests(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Value int `cbor:"value"`
		}
		codec.Unmarshal(raw, &request)
		return map[string]any{"value": request.Value}, nil
	})

	stop := startServer(t, server)
	defer stop()

	const concurrency = 20
	var clientWg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		i := i
		clientWg.Add(1)
		go func() {
			defer clientWg.Done()
			response := sendRequest(t, socketPath, map[string]any{
				"action": "echo",
				"value":  i,
			})
			if !response.OK {
				t.Errorf("request %d: expected ok=true", i)
			}
			var data map[string]any
			decodeData(t, response, &data)
			if data["value"] != uint64(i) {
				t.Errorf("request %d: expected value=%d, got %v", i, i, data["value"])
			}
		}()
	}
	clientWg.Wait()
}

func TestSocketServerGracefulShutdown(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	// Handler that blocks until released.
	handlerStarted := make(chan struct{})
	handlerRelease := make(chan struct{})
	server.Handle("slow", func(ctx context.Context, raw []byte) (any, error) {
		close(handlerStarted)
		<-handlerRelease
		return map[string]any{"completed": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	waitForSocket(t, socketPath)

	// Start a slow request.
	responseChan := make(chan Response, 1)
	go func() {
		responseChan <- sendRequest(t, socketPath, map[string]string{"action": "slow"})
	}()

	// Wait for the handler to start, then release it and cancel.
	<-handlerStarted
	close(handlerRelease)
	cancel()

	// The slow request should still complete.
	response := <-responseChan
	if !response.OK {
		t.Errorf("expected ok=true for in-flight request, got false")
	}
	var data map[string]any
	decodeData(t, response, &data)
	if data["completed"] != true {
		t.Errorf("expected completed=true, got %v", data["completed"])
	}

	// Serve should return after the in-flight request completes.
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "Serve did not return after cancellation"); err != nil {
		t.Errorf("Serve returned error: %v", err)
	}

	// Socket file should be cleaned up.
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not cleaned up after Serve returned")
	}
}

func TestSocketServerDuplicateHandlerPanics(t *testing.T) {
	server := NewSocketServer("/tmp/test.sock", testLogger())
	server.Handle("foo", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate handler registration")
		}
	}()

	server.Handle("foo", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})
}

func TestSocketClientCall(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger())

	server.Handle("greet", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Name string `cbor:"name"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		if request.Name == "" {
			return nil, fmt.Errorf("name is required")
		}
		return map[string]string{"greeting": "hello " + request.Name}, nil
	})

	stop := startServer(t, server)
	defer stop()

	client := NewSocketClient(socketPath)

	t.Run("success with data", func(t *testing.T) {
		var result struct {
			Greeting string `cbor:"greeting"`
		}
		err := client.Call(context.Background(), "greet", map[string]any{"name": "anon1234"}, &result)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if result.Greeting != "hello anon1234" {
			t.Errorf("greeting = %q, want %q", result.Greeting, "hello anon1234")
		}
	})

	t.Run("server error becomes ServiceError", func(t *testing.T) {
		err := client.Call(context.Background(), "greet", nil, nil)
		if err == nil {
			t.Fatal("expected error for missing name")
		}
		serviceErr, ok := err.(*ServiceError)
		if !ok {
			t.Fatalf("expected *ServiceError, got %T: %v", err, err)
		}
		if serviceErr.Action != "greet" {
			t.Errorf("action = %q, want %q", serviceErr.Action, "greet")
		}
		if serviceErr.Message != "name is required" {
			t.Errorf("message = %q, want %q", serviceErr.Message, "name is required")
		}
	})

	t.Run("connection failure is not ServiceError", func(t *testing.T) {
		missing := NewSocketClient(filepath.Join(t.TempDir(), "missing.sock"))
		err := missing.Call(context.Background(), "greet", nil, nil)
		if err == nil {
			t.Fatal("expected connection error")
		}
		if _, ok := err.(*ServiceError); ok {
			t.Error("connection failure should not be a ServiceError")
		}
	})
}

// waitForSocket polls until the socket file exists. Bounded by the
// test context timeout (no wall-clock access).
func waitForSocket(t *testing.T, path string) {
	t.Helper()
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if context.Background().Err() != nil {
			t.Fatalf("socket %s did not appear before test context expired", path)
		}
		runtime.Gosched()
	}
}
