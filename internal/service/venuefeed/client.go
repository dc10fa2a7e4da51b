package venuefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"RollSwap/internal/domain/models"
	drepo "RollSwap/internal/domain/repository"
	xhttp "RollSwap/pkg/http"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Client implements a VenueStream backed by a venue indexer WebSocket. Each
// frame carries the external pool balances and the chain head block. When a
// REST URL is configured, a snapshot of each subscribed pool is fetched on
// Read so the mirror is warm before the first streamed frame.
type Client struct {
	apiKey         string
	websocketURL   string
	restURL        string
	venues         []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	rest      *xhttp.Client
	conn      *websocket.Conn
	connected bool
}

// New creates a new venue VenueStream.
func New(apiKey, websocketURL, restURL string, venues []string, reconnectDelay, pingInterval time.Duration) drepo.VenueStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		restURL:        restURL,
		venues:         venues,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		rest:           xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("venuefeed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("venuefeed: connected")
	return nil
}

// Subscribe subscribes to configured venue pools.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("venuefeed not connected")
	}
	for _, v := range c.venues {
		msg := map[string]string{"type": "subscribe", "venue": v}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", v, err)
		}
		log.Printf("venuefeed: subscribed %s", v)
	}
	return nil
}

type wsSync struct {
	Venue    string `json:"venue"`
	AssetA   string `json:"asset_a"`
	ReserveA string `json:"reserve_a"`
	AssetB   string `json:"asset_b"`
	ReserveB string `json:"reserve_b"`
	Block    uint64 `json:"block"`
	T        int64  `json:"t"` // ms
}

type wsMessage struct {
	Type string   `json:"type"`
	Data []wsSync `json:"data"`
}

// Read streams PoolSync events and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.PoolSync, <-chan error) {
	syncs := make(chan *models.PoolSync, 1024)
	errs := make(chan error, 1)

	if c.restURL != "" {
		for _, v := range c.venues {
			ps, err := c.fetchSnapshot(ctx, v)
			if err != nil {
				log.Printf("venuefeed: snapshot %s failed: %v", v, err)
				continue
			}
			syncs <- ps
		}
	}

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(syncs)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("venuefeed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("venuefeed read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-sync frames
					continue
				}
				if m.Type != "sync" {
					continue
				}
				for _, d := range m.Data {
					ps, err := decodeSync(d)
					if err != nil {
						continue
					}
					select {
					case syncs <- ps:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return syncs, errs
}

// fetchSnapshot pulls the current pool state over REST.
func (c *Client) fetchSnapshot(ctx context.Context, venue string) (*models.PoolSync, error) {
	var snap wsSync
	err := c.rest.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.restURL + "/pools/" + venue,
		QueryParams: map[string][]string{
			"token": {c.apiKey},
		},
	}, &snap)
	if err != nil {
		return nil, fmt.Errorf("venuefeed snapshot %s: %w", venue, err)
	}
	return decodeSync(snap)
}

func decodeSync(d wsSync) (*models.PoolSync, error) {
	ra, err := decimal.NewFromString(d.ReserveA)
	if err != nil {
		return nil, err
	}
	rb, err := decimal.NewFromString(d.ReserveB)
	if err != nil {
		return nil, err
	}
	return &models.PoolSync{
		Venue:     d.Venue,
		AssetA:    d.AssetA,
		ReserveA:  ra,
		AssetB:    d.AssetB,
		ReserveB:  rb,
		Block:     d.Block,
		Timestamp: d.T / 1000,
	}, nil
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
