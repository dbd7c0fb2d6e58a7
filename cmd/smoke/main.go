package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	ws "nhooyr.io/websocket"

	"chorus/agent/internal/auth"
	"chorus/agent/internal/httpc"
	"chorus/agent/internal/logging"
	"chorus/agent/internal/types"
)

func main() {
	_ = godotenv.Load()
	logging.Setup(os.Getenv("LOG_LEVEL"), "console")

	server := flag.String("server", "http://localhost:3000", "chorus HTTP base URL")
	grpcAddr := flag.String("grpc", "localhost:3001", "chorus gRPC health address")
	wavPath := flag.String("wav", "", "WAV file to send through /respond")
	text := flag.String("text", "Hello, how are you today?", "Transcript to send when no WAV is given")
	outPath := flag.String("out", "", "Write the reply audio here")
	feedSecret := flag.String("feed-secret", os.Getenv("FEED_SECRET"), "Secret for signing the feed token")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	base := strings.TrimRight(*server, "/")

	fmt.Printf("=== chorus smoke test ===\n")
	fmt.Printf("Server: %s\n\n", base)

	fmt.Println("[1] gRPC health...")
	if err := checkGRPC(ctx, *grpcAddr); err != nil {
		log.Fatal().Err(err).Msg("grpc health")
	}

	fmt.Println("[2] Subscribing to /ws/feed...")
	feedDone, err := tailFeed(ctx, base, *feedSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("feed")
	}

	fmt.Println("[3] Listing personalities...")
	var roster struct {
		Personalities []types.Personality `json:"personalities"`
	}
	if err := getJSON(ctx, base+"/personalities", &roster); err != nil {
		log.Fatal().Err(err).Msg("personalities")
	}
	for _, p := range roster.Personalities {
		fmt.Printf("    %-10s voice=%s pos=(%.1f, %.1f, %.1f)\n", p.ID, p.VoiceID, p.Position.X, p.Position.Y, p.Position.Z)
	}

	var audio []byte
	if *wavPath != "" {
		fmt.Printf("[4] Sending %s to /respond...\n", *wavPath)
		audio, err = respond(ctx, base, *wavPath)
	} else {
		fmt.Printf("[4] Sending %q to /query-llama and /process-text...\n", *text)
		audio, err = queryAndSpeak(ctx, base, *text)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline")
	}
	if audio != nil {
		fmt.Printf("    <- %d bytes of audio\n", len(audio))
		if *outPath != "" {
			if err := os.WriteFile(*outPath, audio, 0o644); err != nil {
				log.Fatal().Err(err).Msg("write audio")
			}
			fmt.Printf("    saved to %s\n", *outPath)
		}
	}

	fmt.Println("[5] Fetching /last-audio...")
	if err := lastAudio(ctx, base); err != nil {
		log.Fatal().Err(err).Msg("last-audio")
	}

	fmt.Println("\n[*] Waiting briefly for feed events...")
	select {
	case <-time.After(2 * time.Second):
	case <-feedDone:
	case <-ctx.Done():
	}
	cancel()
	<-feedDone
	fmt.Println("[*] Done")
}

func checkGRPC(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	fmt.Printf("    <- %s\n", resp.GetStatus())
	return nil
}

func tailFeed(ctx context.Context, base, secret string) (<-chan struct{}, error) {
	u := "ws" + strings.TrimPrefix(base, "http") + "/ws/feed"
	if secret != "" {
		u += "?token=" + auth.Sign(secret, "smoke", time.Now().Add(10*time.Minute))
	}
	c, _, err := ws.Dial(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer c.Close(ws.StatusNormalClosure, "")
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			var evt types.Event
			if json.Unmarshal(data, &evt) != nil {
				continue
			}
			fmt.Printf("    [feed %s] %s %s\n", evt.Ts.Format("15:04:05.000"), evt.Type, evt.ParticipantID)
		}
	}()
	return done, nil
}

func respond(ctx context.Context, base, path string) ([]byte, error) {
	wav, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out struct {
		Audio         string `json:"audio"`
		PersonalityID string `json:"personalityId"`
		Transcription string `json:"transcription"`
		Response      string `json:"response"`
		Queued        bool   `json:"queued"`
	}
	body := map[string]string{"audio": base64.StdEncoding.EncodeToString(wav)}
	if err := postJSON(ctx, base+"/respond", body, &out); err != nil {
		return nil, err
	}
	fmt.Printf("    heard: %q\n", out.Transcription)
	if out.Queued {
		fmt.Printf("    <- queued for %s\n", out.PersonalityID)
		return nil, nil
	}
	fmt.Printf("    <- %s: %q\n", out.PersonalityID, out.Response)
	if out.Audio == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(out.Audio)
}

func queryAndSpeak(ctx context.Context, base, text string) ([]byte, error) {
	var reply struct {
		Response      string `json:"response"`
		PersonalityID string `json:"personalityId"`
		Queued        bool   `json:"queued"`
	}
	if err := postJSON(ctx, base+"/query-llama", map[string]string{"transcription": text}, &reply); err != nil {
		return nil, err
	}
	if reply.Queued || reply.Response == "" {
		fmt.Printf("    <- nothing to speak (queued=%v)\n", reply.Queued)
		return nil, nil
	}
	fmt.Printf("    <- %s: %q\n", reply.PersonalityID, reply.Response)

	payload, _ := json.Marshal(map[string]string{"text": reply.Response, "personalityId": reply.PersonalityID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/process-text", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpc.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("process-text: HTTP %d: %s", resp.StatusCode, httpc.ErrorBody(resp))
	}
	return io.ReadAll(resp.Body)
}

func lastAudio(ctx context.Context, base string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/last-audio", nil)
	if err != nil {
		return err
	}
	resp, err := httpc.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		fmt.Println("    <- no audio yet")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, httpc.ErrorBody(resp))
	}
	n, _ := io.Copy(io.Discard, resp.Body)
	fmt.Printf("    <- %d bytes from %q\n", n, resp.Header.Get("X-Personality-Id"))
	return nil
}

func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpc.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, httpc.ErrorBody(resp))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpc.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, httpc.ErrorBody(resp))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
