package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"github.com/zxytt/nft-auction-marketplace/configs"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
	"github.com/zxytt/nft-auction-marketplace/pkg/types"
)

// Service mirrors the engine's on-chain state into postgres so the
// presentation layer can list and page auctions without walking the
// registry, and keeps the full bid history the in-memory instances drop.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error

	// USER METHODS
	GetUserByEmail(email string) (types.User, error)

	// AUCTION METHODS
	UpsertAuction(details types.AuctionDetails) error
	GetAuctionByAddress(address string) (types.AuctionDetails, error)
	GetCurrentAuctions() ([]types.AuctionDetails, error)
	GetBidsForAuction(address string) ([]types.Bid, error)

	// TRANSACTION METHODS
	BeginTx(ctx context.Context) (*sql.Tx, error)
	UpsertAuctionTx(ctx context.Context, tx *sql.Tx, details types.AuctionDetails) error
	CreateBidTx(ctx context.Context, tx *sql.Tx, bid types.Bid) (types.Bid, error)
}

type service struct {
	db *sql.DB
}

var dbInstance *service

func New(cfg *configs.Config) Service {
	// Reuse Connection
	if dbInstance != nil {
		return dbInstance
	}
	dbConfig := cfg.Database
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
		dbConfig.SSLMode,
	)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatal(err)
	}

	dbInstance = &service{
		db: db,
	}
	return dbInstance
}

// NewFromDB wraps an existing connection; used by integration tests.
func NewFromDB(db *sql.DB) Service {
	return &service{db: db}
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	// Ping the database
	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		log.Errorf("db down: %v", err)
		return stats
	}

	// Database is up, add more statistics
	stats["status"] = "up"
	stats["message"] = "It's healthy"

	// Get database stats (like open connections, in use, idle, etc.)
	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
// It logs a message indicating the disconnection from the specific database.
// If the connection is successfully closed, it returns nil.
// If an error occurs while closing the connection, it returns the error.
func (s *service) Close() error {
	log.Info("Disconnected from database")
	return s.db.Close()
}

func (s *service) GetUserByEmail(email string) (types.User, error) {
	var user types.User
	err := s.db.QueryRow(`SELECT "id", "name", "email", "address", "role" FROM public."User" WHERE "email" = $1`, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.Address, &user.Role)
	if err != nil {
		return types.User{}, fmt.Errorf("error getting user by email: %w", err)
	}
	return user, nil
}

const auctionColumns = `"address", "assetContract", "assetId", "seller", "paymentAsset", "startTime", "endTime", "reservePriceUsd", "highestBid", "highestBidder", "ended"`

const upsertAuctionQuery = `
        INSERT INTO public."Auctions" (` + auctionColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT ("address") DO UPDATE SET
            "highestBid" = EXCLUDED."highestBid",
            "highestBidder" = EXCLUDED."highestBidder",
            "ended" = EXCLUDED."ended"
    `

func scanAuction(row interface{ Scan(...any) error }) (types.AuctionDetails, error) {
	var d types.AuctionDetails
	err := row.Scan(
		&d.Address,
		&d.AssetContract,
		&d.AssetID,
		&d.Seller,
		&d.PaymentAsset,
		&d.StartTime,
		&d.EndTime,
		&d.ReservePriceUsd,
		&d.HighestBid,
		&d.HighestBidder,
		&d.Ended,
	)
	return d, err
}

// UpsertAuction writes the latest snapshot of an auction keyed by its
// instance address.
func (s *service) UpsertAuction(d types.AuctionDetails) error {
	_, err := s.db.Exec(upsertAuctionQuery,
		d.Address, d.AssetContract, d.AssetID, d.Seller, d.PaymentAsset,
		d.StartTime, d.EndTime, d.ReservePriceUsd, d.HighestBid, d.HighestBidder, d.Ended,
	)
	if err != nil {
		return errors.Wrap(err, "error upserting auction")
	}
	log.Debugf("Auction %s persisted with highest bid %s", d.Address, d.HighestBid)
	return nil
}

func (s *service) GetAuctionByAddress(address string) (types.AuctionDetails, error) {
	query := `SELECT ` + auctionColumns + ` FROM public."Auctions" WHERE "address" = $1`
	d, err := scanAuction(s.db.QueryRow(query, address))
	if err != nil {
		return types.AuctionDetails{}, fmt.Errorf("error getting auction by address: %w", err)
	}
	return d, nil
}

func (s *service) GetCurrentAuctions() ([]types.AuctionDetails, error) {
	query := `SELECT ` + auctionColumns + ` FROM public."Auctions" ORDER BY "startTime" ASC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error getting current auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.AuctionDetails
	for rows.Next() {
		d, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, d)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}

	return auctions, nil
}

func (s *service) GetBidsForAuction(address string) ([]types.Bid, error) {
	query := `
        SELECT "id", "auctionAddress", "bidder", "amount", "createdAt", "updatedAt"
        FROM public."Bid" WHERE "auctionAddress" = $1 ORDER BY "createdAt" ASC
    `
	rows, err := s.db.Query(query, address)
	if err != nil {
		return nil, fmt.Errorf("error getting bids for auction: %w", err)
	}
	defer rows.Close()

	var bids []types.Bid
	for rows.Next() {
		var b types.Bid
		if err := rows.Scan(&b.ID, &b.AuctionAddress, &b.Bidder, &b.Amount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning bid: %w", err)
		}
		bids = append(bids, b)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over bids: %w", err)
	}

	return bids, nil
}

// BeginTx starts a new database transaction.
func (s *service) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	return tx, nil
}

// UpsertAuctionTx writes an auction snapshot within a transaction.
func (s *service) UpsertAuctionTx(ctx context.Context, tx *sql.Tx, d types.AuctionDetails) error {
	_, err := tx.ExecContext(ctx, upsertAuctionQuery,
		d.Address, d.AssetContract, d.AssetID, d.Seller, d.PaymentAsset,
		d.StartTime, d.EndTime, d.ReservePriceUsd, d.HighestBid, d.HighestBidder, d.Ended,
	)
	if err != nil {
		return fmt.Errorf("error upserting auction in tx: %w", err)
	}
	return nil
}

// CreateBidTx records an accepted bid within a transaction.
func (s *service) CreateBidTx(ctx context.Context, tx *sql.Tx, bid types.Bid) (types.Bid, error) {
	var returnedBid types.Bid
	query := `
        INSERT INTO public."Bid" ("id", "auctionAddress", "bidder", "amount", "updatedAt")
        VALUES (gen_random_uuid(), $1, $2, $3, now())
        RETURNING "id", "auctionAddress", "bidder", "amount", "createdAt", "updatedAt"
    `
	err := tx.QueryRowContext(ctx, query, bid.AuctionAddress, bid.Bidder, bid.Amount).Scan(
		&returnedBid.ID,
		&returnedBid.AuctionAddress,
		&returnedBid.Bidder,
		&returnedBid.Amount,
		&returnedBid.CreatedAt,
		&returnedBid.UpdatedAt,
	)
	if err != nil {
		return types.Bid{}, fmt.Errorf("error creating bid in tx: %w", err)
	}
	return returnedBid, nil
}
