package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/pairwave/roomrelay/internal/config"
)

func startTestServer(t *testing.T, cfg config.Config) (baseURL string) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, log, BuildInfo{Commit: "abc", BuildTime: "now"})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	return "http://" + ln.Addr().String()
}

func TestHealthAndVersionEndpoints(t *testing.T) {
	base := startTestServer(t, config.Config{ListenAddr: "127.0.0.1:0"})

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Fatalf("missing X-Request-ID header")
	}

	resp, err = http.Get(base + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/version")
	if err != nil {
		t.Fatalf("GET /version: %v", err)
	}
	defer resp.Body.Close()
	var build BuildInfo
	if err := json.NewDecoder(resp.Body).Decode(&build); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if build.Commit != "abc" {
		t.Fatalf("version commit = %q", build.Commit)
	}
}

func TestICEEndpoint(t *testing.T) {
	base := startTestServer(t, config.Config{
		ListenAddr:    "127.0.0.1:0",
		ICEServerURLs: []string{"stun:stun.example.org:3478"},
	})

	resp, err := http.Get(base + "/webrtc/ice")
	if err != nil {
		t.Fatalf("GET /webrtc/ice: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.ICEServers) != 1 || len(body.ICEServers[0].URLs) != 1 || body.ICEServers[0].URLs[0] != "stun:stun.example.org:3478" {
		t.Fatalf("iceServers = %+v", body.ICEServers)
	}
}

func TestICEEndpoint_OriginPolicy(t *testing.T) {
	base := startTestServer(t, config.Config{
		ListenAddr:     "127.0.0.1:0",
		AllowedOrigins: []string{"https://app.example.com"},
	})

	req, _ := http.NewRequest(http.MethodGet, base+"/webrtc/ice", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("disallowed origin status = %d, want 403", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, base+"/webrtc/ice", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("allowed origin status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}
