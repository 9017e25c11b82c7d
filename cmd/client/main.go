package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dirsync/server/internal/config"
	"github.com/dirsync/server/internal/snapshot"
	"github.com/dirsync/server/internal/walk"
	"github.com/dirsync/server/internal/ws"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	readTimeout        = 90 * time.Second
)

// client is one observer: it captures snapshots of the watched root, submits
// them, and prints every delta the server fans out.
type client struct {
	url     string
	root    string
	matcher *walk.Matcher

	mu      sync.Mutex
	writeMu sync.Mutex // serialises frame writes (submissions can race with watch mode)
	conn    *websocket.Conn
}

// run owns the connection: dial with backoff, resynchronize with a fresh
// submission, then read until the connection drops and start over.
func (c *client) run(ctx context.Context) {
	delay := reconnectBaseDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			log.Printf("dial %s: %v (retry in %v)", c.url, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}
		delay = reconnectBaseDelay
		log.Printf("connected to %s", c.url)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		// The server keeps no delta history for absent observers, so a fresh
		// submission is the only way back in sync.
		if err := c.submit(); err != nil {
			log.Printf("resync submission failed: %v", err)
		}

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}
}

func (c *client) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	for {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("connection lost: %v", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case ws.MsgDelta:
			var payload ws.DeltaPayload
			if err := decodePayload(msg.Payload, &payload); err != nil {
				log.Printf("bad delta payload: %v", err)
				continue
			}
			printDelta(msg.Seq, payload)
		case ws.MsgError:
			var payload ws.ErrorPayload
			if err := decodePayload(msg.Payload, &payload); err == nil {
				log.Printf("server error: %s", payload.Message)
			}
		}
	}
}

func decodePayload(raw []byte, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(raw, v)
}

// submit walks the root and ships the capture as one submission frame.
func (c *client) submit() error {
	snap, err := walk.Walk(c.root, c.matcher)
	if err != nil {
		return fmt.Errorf("capturing %s: %w", c.root, err)
	}
	return c.submitSnapshot(snap)
}

func (c *client) submitSnapshot(snap snapshot.Snapshot) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	frame, err := ws.Encode(ws.MsgSubmission, 0, ws.SubmissionPayload{Records: snap.Records()})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func printDelta(seq uint64, d ws.DeltaPayload) {
	fmt.Printf("--- update #%d ---\n", seq)
	printGroup("Added", d.Added)
	printGroup("Removed", d.Removed)
	printGroup("Modified", d.Modified)
}

func printGroup(label string, records []snapshot.FileRecord) {
	if len(records) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, r := range records {
		fmt.Printf("  %s\n", r)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	url := flag.String("url", "", "Override server WebSocket URL")
	root := flag.String("root", "", "Override watched directory root")
	watch := flag.Bool("watch", false, "Submit automatically on filesystem changes")
	interval := flag.Duration("interval", 0, "Submit on a fixed interval (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = config.Default()
	}

	if *url != "" {
		cfg.Client.ServerURL = *url
	}
	if *root != "" {
		cfg.Watch.Root = *root
	}
	if *interval > 0 {
		cfg.Client.PollInterval = config.Duration{Duration: *interval}
	}

	matcher, err := walk.NewMatcher(cfg.Watch.IgnorePatterns)
	if err != nil {
		log.Fatalf("Bad ignore patterns: %v", err)
	}

	c := &client{
		url:     cfg.Client.ServerURL,
		root:    cfg.Watch.Root,
		matcher: matcher,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.run(ctx)

	if *watch {
		watcher, err := walk.NewWatcher(cfg.Watch.Root, matcher, cfg.Watch.Debounce.Duration, func(snap snapshot.Snapshot) {
			if err := c.submitSnapshot(snap); err != nil {
				log.Printf("watch submission failed: %v", err)
			}
		})
		if err != nil {
			log.Fatalf("Failed to start watcher: %v", err)
		}
		go watcher.Run(ctx)
		log.Printf("watching %s for changes", cfg.Watch.Root)
	}

	if cfg.Client.PollInterval.Duration > 0 {
		ticker := time.NewTicker(cfg.Client.PollInterval.Duration)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := c.submit(); err != nil {
						log.Printf("interval submission failed: %v", err)
					}
				}
			}
		}()
	}

	fmt.Println("u -> submit a fresh capture, q -> quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch scanner.Text() {
		case "u":
			if err := c.submit(); err != nil {
				log.Printf("submission failed: %v", err)
			}
		case "q":
			return
		default:
			fmt.Println("u -> submit a fresh capture, q -> quit")
		}
	}
}
