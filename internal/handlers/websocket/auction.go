package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/zxytt/nft-auction-marketplace/configs"
	"github.com/zxytt/nft-auction-marketplace/internal/auction"
	"github.com/zxytt/nft-auction-marketplace/internal/auth"
	"github.com/zxytt/nft-auction-marketplace/internal/database"
	"github.com/zxytt/nft-auction-marketplace/internal/ledger"
	"github.com/zxytt/nft-auction-marketplace/internal/nft"
	"github.com/zxytt/nft-auction-marketplace/pkg/types"
)

// AuctionHandler is the gateway between websocket clients and the engine.
// It also implements the engine's EventSink, fanning every notification out
// to all connected clients.
type AuctionHandler struct {
	db      database.Service
	factory *auction.Factory
	ledger  *ledger.Ledger
	nfts    *nft.Registry
	cfg     *configs.Config

	connectedClients sync.Map
	stopPoller       chan struct{}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewAuctionWebSocketHandler(db database.Service, factory *auction.Factory,
	l *ledger.Ledger, nfts *nft.Registry, cfg *configs.Config) *AuctionHandler {
	return &AuctionHandler{
		db:         db,
		factory:    factory,
		ledger:     l,
		nfts:       nfts,
		cfg:        cfg,
		stopPoller: make(chan struct{}),
	}
}

// handleAuctions upgrades the HTTP request to a WebSocket connection.
func (h *AuctionHandler) handleAuctions(w http.ResponseWriter, r *http.Request, user types.User) {
	addr, err := auth.AddressFromTokenString(user.Address)
	if err != nil {
		http.Error(w, "Session has no valid wallet address", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Infof("Failed to upgrade connection: %v", err)
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}

	// Initialize a new client
	client := &Client{
		ID:          uuid.NewString(),
		Email:       user.Email,
		Address:     addr,
		Conn:        conn,
		Send:        make(chan []byte, 16),
		RateLimiter: rate.NewLimiter(rate.Limit(h.cfg.WebSocket.RateLimit), h.cfg.WebSocket.RateBurst),
	}

	h.connectedClients.Store(client, true)

	// Start handling the client
	go client.ReadMessages(h.HandleMessage)
	go client.WriteMessages()
}

// HandleAuctionWebSocket integrates authentication and WebSocket handling.
func (h *AuctionHandler) HandleAuctionWebSocket(w http.ResponseWriter, r *http.Request) {
	// Validate the token from the cookie
	token, err := auth.ValidateTokenFromCookie(r)
	if err != nil || token == nil {
		log.Error("Invalid token: ", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var email string
	err = token.Get("email", &email)
	if err != nil {
		log.Error("Error retrieving email from token claims")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Check if the user exists
	user, err := h.db.GetUserByEmail(email)
	if err != nil {
		log.Error("User not found: ", err)
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	// Prefer the address claim baked into the session over the user record
	if addr, err := auth.AddressFromToken(token); err == nil {
		user.Address = addr.Hex()
	}

	// Pass to WebSocket handler
	h.handleAuctions(w, r, user)
}

// Broadcast sends a message to all connected clients.
func (h *AuctionHandler) Broadcast(message []byte) {
	h.connectedClients.Range(func(key, _ any) bool {
		client := key.(*Client)
		select {
		case client.Send <- message:
		default:
			// Drop clients that stopped draining their queue
			h.connectedClients.Delete(client)
			client.Disconnect(nil)
		}
		return true
	})
}

// Emit satisfies the engine's EventSink: every engine notification is
// broadcast as-is to all connected observers.
func (h *AuctionHandler) Emit(event types.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		log.Error("Error marshalling event: ", err)
		return
	}
	h.Broadcast(raw)
}

// StartPeriodicCheck runs the settlement poller: any expired, unsettled
// auction gets settled. Settlement is callable by anyone; the server merely
// volunteers, so a concurrent external settle is tolerated (AlreadyEnded).
func (h *AuctionHandler) StartPeriodicCheck() {
	interval := h.cfg.Auction.SettleInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopPoller:
				return
			case <-ticker.C:
				h.settleExpired()
			}
		}
	}()
}

// StopPeriodicCheck terminates the settlement poller.
func (h *AuctionHandler) StopPeriodicCheck() {
	close(h.stopPoller)
}

func (h *AuctionHandler) settleExpired() {
	now := time.Now()
	for _, a := range h.factory.Auctions() {
		if a.Ended() || now.Before(a.EndTime()) {
			continue
		}
		if err := a.Settle(); err != nil {
			log.Debugf("Settle attempt for %s rejected: %v", a.Address().Hex(), err)
			continue
		}
		if err := h.db.UpsertAuction(a.Details()); err != nil {
			log.Error("Error persisting settled auction: ", err)
		}
	}
}
