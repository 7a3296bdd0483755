package main

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/zxytt/nft-auction-marketplace/configs"
	"github.com/zxytt/nft-auction-marketplace/internal/auction"
	"github.com/zxytt/nft-auction-marketplace/internal/database"
	"github.com/zxytt/nft-auction-marketplace/internal/events"
	"github.com/zxytt/nft-auction-marketplace/internal/handlers/websocket"
	"github.com/zxytt/nft-auction-marketplace/internal/ledger"
	"github.com/zxytt/nft-auction-marketplace/internal/nft"
	"github.com/zxytt/nft-auction-marketplace/internal/oracle"
)

func main() {
	// Load configurations
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080" // Default port if not specified
	}

	// Setup logger
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "debug" // Default log level if not specified
	}
	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level: ", err)
	}
	log.SetLevel(logLevel)

	// Initialize database service
	db := database.New(cfg)
	defer db.Close()

	// Build the settlement engine
	owner := common.HexToAddress(cfg.Auction.Owner)
	relay := &events.Relay{}

	l := ledger.New()
	for _, tc := range cfg.Tokens {
		if !common.IsHexAddress(tc.Address) {
			log.Fatal("Invalid token address: ", tc.Address)
		}
		l.RegisterToken(common.HexToAddress(tc.Address), ledger.NewToken(tc.Name, tc.Symbol))
	}

	nfts := nft.NewRegistry()
	if cfg.NFT.Contract != "" {
		if err := nfts.Deploy(common.HexToAddress(cfg.NFT.Contract), cfg.NFT.Name, cfg.NFT.Symbol, owner); err != nil {
			log.Fatal("Error deploying NFT collection: ", err)
		}
	}

	orc := oracle.New(owner, cfg.Oracle.StalenessBound, relay)
	for _, fc := range cfg.Oracle.Feeds {
		price, err := decimal.NewFromString(fc.Price)
		if err != nil {
			log.Fatal("Invalid feed price: ", err)
		}
		asset := ledger.NativeAsset
		if fc.Asset != "" {
			asset = common.HexToAddress(fc.Asset)
		}
		feed := oracle.NewStaticFeed(fc.Description, fc.FeedDecimals, price, time.Now())
		if err := orc.SetFeed(owner, asset, feed, fc.AssetDecimals); err != nil {
			log.Fatal("Error configuring feed: ", err)
		}
	}

	factory, err := auction.NewFactory(common.HexToAddress(cfg.Auction.FactoryAddress), auction.Config{
		Owner:        owner,
		FeeCollector: common.HexToAddress(cfg.Auction.FeeCollector),
		FeePercent:   cfg.Auction.FeePercent,
		MinDuration:  cfg.Auction.MinDuration,
		Oracle:       orc,
		Funds:        l,
		Custody:      nfts,
		Events:       relay,
	})
	if err != nil {
		log.Fatal("Error creating auction factory: ", err)
	}

	// Initialize WebSocket handler and attach it as the event sink
	auctionHandler := websocket.NewAuctionWebSocketHandler(db, factory, l, nfts, cfg)
	relay.SetSink(auctionHandler)

	// Start periodic settlement of expired auctions
	auctionHandler.StartPeriodicCheck()

	// Setup routes
	http.HandleFunc("/ws/auction", auctionHandler.HandleAuctionWebSocket)

	log.Infof("Server started on port %s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
