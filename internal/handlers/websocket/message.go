package websocket

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/zxytt/nft-auction-marketplace/internal/ledger"
	"github.com/zxytt/nft-auction-marketplace/pkg/errors"
	"github.com/zxytt/nft-auction-marketplace/pkg/types"
)

type Message struct {
	Type string `json:"type"` // Type of the message (e.g., "bid", "settle")
	Data string `json:"data"` // Payload of the message
}

// ParseMessage validates and parses incoming messages.
func ParseMessage(rawMessage []byte) (*Message, error) {
	var msg Message
	err := json.Unmarshal(rawMessage, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// HandleMessage routes the message based on its type.
func (h *AuctionHandler) HandleMessage(client *Client, rawMessage []byte) {
	if !client.RateLimiter.Allow() {
		log.Warnf("Rate limit exceeded for client %s", client.ID)
		client.Send <- errors.New(errors.ErrRateLimited, "Rate limit exceeded").ToJSON()
		return
	}

	msg, err := ParseMessage(rawMessage)
	if err != nil {
		log.Infof("Invalid message from client %s: %v", client.ID, err)
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid message format").ToJSON()
		return
	}

	switch msg.Type {
	case "join":
		log.Debug("Client joined the auction feed", "address", client.Address.Hex())
		h.handleListMessage(client)
	case "list":
		h.handleListMessage(client)
	case "details":
		h.handleDetailsMessage(client, msg.Data)
	case "history":
		h.handleHistoryMessage(client, msg.Data)
	case "create":
		h.handleCreateMessage(client, msg.Data)
	case "bid":
		h.handleBidMessage(client, msg.Data)
	case "settle":
		h.handleSettleMessage(client, msg.Data)
	case "withdraw":
		h.handleWithdrawMessage(client, msg.Data)
	case "mint":
		h.handleMintMessage(client, msg.Data)
	case "approve":
		h.handleApproveMessage(client, msg.Data)
	case "approve_token":
		h.handleApproveTokenMessage(client, msg.Data)
	case "faucet":
		h.handleFaucetMessage(client, msg.Data)
	default:
		log.Printf("Unknown message type: %s", msg.Type)
		client.Send <- errors.New(errors.ErrUnknownMessageType, "Unknown message type").ToJSON()
	}
}

// reply marshals a typed payload back to one client.
func reply(client *Client, kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("Error marshalling reply: ", err)
		client.Send <- errors.New(errors.ErrInternalServer, "Internal server error").ToJSON()
		return
	}
	raw, err := json.Marshal(&Message{Type: kind, Data: string(data)})
	if err != nil {
		log.Error("Error marshalling reply envelope: ", err)
		return
	}
	client.Send <- raw
}

// sendError maps an engine rejection onto the wire, preserving its reason
// code so the client can render a specific explanation.
func sendError(client *Client, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		client.Send <- appErr.ToJSON()
		return
	}
	client.Send <- errors.New(errors.ErrInternalServer, "Internal server error").ToJSON()
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.New(errors.ErrBadMessageFormat, "amount is not a valid decimal integer")
	}
	return amount, nil
}

func (h *AuctionHandler) handleListMessage(client *Client) {
	auctions := h.factory.Auctions()
	details := make([]types.AuctionDetails, 0, len(auctions))
	for _, a := range auctions {
		details = append(details, a.Details())
	}
	reply(client, "auction_list", details)
}

func (h *AuctionHandler) handleDetailsMessage(client *Client, data string) {
	var req struct {
		Auction string `json:"auction"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil || !common.IsHexAddress(req.Auction) {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid details request").ToJSON()
		return
	}
	a, err := h.factory.AuctionByAddress(common.HexToAddress(req.Auction))
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, "auction_details", a.Details())
}

func (h *AuctionHandler) handleHistoryMessage(client *Client, data string) {
	var req struct {
		Auction string `json:"auction"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil || !common.IsHexAddress(req.Auction) {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid history request").ToJSON()
		return
	}
	bids, err := h.db.GetBidsForAuction(common.HexToAddress(req.Auction).Hex())
	if err != nil {
		log.Error("Error retrieving bid history: ", err)
		client.Send <- errors.New(errors.ErrInternalServer, "Internal server error").ToJSON()
		return
	}
	reply(client, "bid_history", bids)
}

func (h *AuctionHandler) handleCreateMessage(client *Client, data string) {
	var req struct {
		AssetContract   string `json:"assetContract"`
		AssetID         string `json:"assetId"`
		PaymentAsset    string `json:"paymentAsset"`
		DurationSeconds int64  `json:"durationSeconds"`
		ReservePriceUsd string `json:"reservePriceUsd"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil || !common.IsHexAddress(req.AssetContract) {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid create request").ToJSON()
		return
	}
	assetID, ok := new(big.Int).SetString(req.AssetID, 10)
	if !ok {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid asset id").ToJSON()
		return
	}
	reserve, err := parseAmount(req.ReservePriceUsd)
	if err != nil {
		sendError(client, err)
		return
	}
	paymentAsset := ledger.NativeAsset
	if req.PaymentAsset != "" {
		if !common.IsHexAddress(req.PaymentAsset) {
			client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid payment asset").ToJSON()
			return
		}
		paymentAsset = common.HexToAddress(req.PaymentAsset)
	}

	a, err := h.factory.CreateAuction(client.Address, common.HexToAddress(req.AssetContract),
		assetID, paymentAsset, time.Duration(req.DurationSeconds)*time.Second, reserve)
	if err != nil {
		sendError(client, err)
		return
	}

	if err := h.db.UpsertAuction(a.Details()); err != nil {
		log.Error("Error persisting created auction: ", err)
	}
	reply(client, "auction_created", a.Details())
}

func (h *AuctionHandler) handleBidMessage(client *Client, data string) {
	var req struct {
		Auction string `json:"auction"`
		Amount  string `json:"amount"`
		Value   string `json:"value"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil || !common.IsHexAddress(req.Auction) {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid bid message").ToJSON()
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		sendError(client, err)
		return
	}
	value := new(big.Int)
	if req.Value != "" {
		if value, err = parseAmount(req.Value); err != nil {
			sendError(client, err)
			return
		}
	}

	a, err := h.factory.AuctionByAddress(common.HexToAddress(req.Auction))
	if err != nil {
		sendError(client, err)
		return
	}

	if err := a.PlaceBid(client.Address, amount, value); err != nil {
		sendError(client, err)
		return
	}

	// Mirror the accepted bid into the database inside one transaction.
	ctx := context.Background()
	tx, err := h.db.BeginTx(ctx)
	if err != nil {
		log.Error("Error starting transaction: ", err)
		client.Send <- errors.New(errors.ErrInternalServer, "Internal server error").ToJSON()
		return
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			tx.Commit()
		}
	}()

	if err = h.db.UpsertAuctionTx(ctx, tx, a.Details()); err != nil {
		log.Error("Error persisting auction: ", err)
		return
	}
	bid := types.Bid{
		AuctionAddress: a.Address().Hex(),
		Bidder:         client.Address.Hex(),
		Amount:         amount.String(),
	}
	if _, err = h.db.CreateBidTx(ctx, tx, bid); err != nil {
		log.Error("Error recording bid: ", err)
		return
	}

	reply(client, "bid_accepted", a.Details())
}

func (h *AuctionHandler) handleSettleMessage(client *Client, data string) {
	var req struct {
		Auction string `json:"auction"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil || !common.IsHexAddress(req.Auction) {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid settle request").ToJSON()
		return
	}
	a, err := h.factory.AuctionByAddress(common.HexToAddress(req.Auction))
	if err != nil {
		sendError(client, err)
		return
	}
	if err := a.Settle(); err != nil {
		sendError(client, err)
		return
	}
	if err := h.db.UpsertAuction(a.Details()); err != nil {
		log.Error("Error persisting settled auction: ", err)
	}
	reply(client, "auction_settled", a.Details())
}

func (h *AuctionHandler) handleWithdrawMessage(client *Client, data string) {
	var req struct {
		Asset string `json:"asset"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid withdraw request").ToJSON()
		return
	}
	asset := ledger.NativeAsset
	if req.Asset != "" {
		if !common.IsHexAddress(req.Asset) {
			client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid asset address").ToJSON()
			return
		}
		asset = common.HexToAddress(req.Asset)
	}

	amount, err := h.ledger.Withdraw(client.Address, asset)
	if err != nil {
		sendError(client, err)
		return
	}
	log.Info("Withdrawal completed", "address", client.Address.Hex(), "amount", amount.String())
	reply(client, "withdrawal", struct {
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}{Asset: asset.Hex(), Amount: amount.String()})
}

func (h *AuctionHandler) handleMintMessage(client *Client, data string) {
	var req struct {
		Contract string `json:"contract"`
		To       string `json:"to"`
		URI      string `json:"uri"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil || !common.IsHexAddress(req.Contract) {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid mint request").ToJSON()
		return
	}
	to := client.Address
	if req.To != "" {
		if !common.IsHexAddress(req.To) {
			client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid mint recipient").ToJSON()
			return
		}
		to = common.HexToAddress(req.To)
	}
	id, err := h.nfts.Mint(common.HexToAddress(req.Contract), client.Address, to, req.URI)
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, "minted", struct {
		Contract string `json:"contract"`
		TokenID  string `json:"tokenId"`
		Owner    string `json:"owner"`
	}{Contract: common.HexToAddress(req.Contract).Hex(), TokenID: id.String(), Owner: to.Hex()})
}

// handleApproveMessage approves the factory to pull the caller's token, the
// step a seller performs before creating an auction.
func (h *AuctionHandler) handleApproveMessage(client *Client, data string) {
	var req struct {
		Contract string `json:"contract"`
		TokenID  string `json:"tokenId"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil || !common.IsHexAddress(req.Contract) {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid approve request").ToJSON()
		return
	}
	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid token id").ToJSON()
		return
	}
	if err := h.nfts.Approve(common.HexToAddress(req.Contract), client.Address,
		h.factory.Address(), tokenID); err != nil {
		sendError(client, err)
		return
	}
	reply(client, "approved", struct {
		Contract string `json:"contract"`
		TokenID  string `json:"tokenId"`
		Spender  string `json:"spender"`
	}{Contract: common.HexToAddress(req.Contract).Hex(), TokenID: tokenID.String(), Spender: h.factory.Address().Hex()})
}

// handleApproveTokenMessage grants an auction instance an allowance to pull
// the caller's tokens, the step a bidder performs before a token bid. The
// allowance goes to the instance because the escrow pull runs with the
// instance as spender.
func (h *AuctionHandler) handleApproveTokenMessage(client *Client, data string) {
	var req struct {
		Token   string `json:"token"`
		Auction string `json:"auction"`
		Amount  string `json:"amount"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil ||
		!common.IsHexAddress(req.Token) || !common.IsHexAddress(req.Auction) {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid token approve request").ToJSON()
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		sendError(client, err)
		return
	}
	token, err := h.ledger.TokenAt(common.HexToAddress(req.Token))
	if err != nil {
		sendError(client, err)
		return
	}
	a, err := h.factory.AuctionByAddress(common.HexToAddress(req.Auction))
	if err != nil {
		sendError(client, err)
		return
	}
	token.Approve(client.Address, a.Address(), amount)
	reply(client, "token_approved", struct {
		Token   string `json:"token"`
		Auction string `json:"auction"`
		Amount  string `json:"amount"`
	}{Token: common.HexToAddress(req.Token).Hex(), Auction: a.Address().Hex(), Amount: amount.String()})
}

// handleFaucetMessage funds the caller with native currency, or with a
// registered token when an asset is named. Dev only.
func (h *AuctionHandler) handleFaucetMessage(client *Client, data string) {
	if !h.cfg.Features.DevFaucet {
		client.Send <- errors.New(errors.ErrUnknownMessageType, "Faucet is disabled").ToJSON()
		return
	}
	var req struct {
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid faucet request").ToJSON()
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		sendError(client, err)
		return
	}

	balancePayload := struct {
		Asset   string `json:"asset"`
		Balance string `json:"balance"`
	}{Asset: ledger.NativeAsset.Hex()}

	if req.Asset != "" {
		if !common.IsHexAddress(req.Asset) {
			client.Send <- errors.New(errors.ErrBadMessageFormat, "Invalid asset address").ToJSON()
			return
		}
		asset := common.HexToAddress(req.Asset)
		token, err := h.ledger.TokenAt(asset)
		if err != nil {
			sendError(client, err)
			return
		}
		token.Mint(client.Address, amount)
		balancePayload.Asset = asset.Hex()
		balancePayload.Balance = token.BalanceOf(client.Address).String()
		reply(client, "funded", balancePayload)
		return
	}

	h.ledger.Fund(client.Address, amount)
	balancePayload.Balance = h.ledger.BalanceOf(client.Address).String()
	reply(client, "funded", balancePayload)
}
