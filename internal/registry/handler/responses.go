package handler

import (
	"time"

	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/audit"
)

// RegistryResponse is the HTTP response for GET /registry.
type RegistryResponse struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Policy      string `json:"policy"`
	Sentinel    string `json:"sentinel"`
	TotalSupply int    `json:"total_supply"`
}

// EntryResponse describes one registry entry. Owner is the sentinel
// principal while the entry is unclaimed.
type EntryResponse struct {
	TokenID    string    `json:"token_id"`
	TokenIDHex string    `json:"token_id_hex"`
	URI        string    `json:"uri"`
	Index      int       `json:"index"`
	State      string    `json:"state"`
	Owner      string    `json:"owner"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListResponse is the HTTP response for GET /tokens.
type ListResponse struct {
	Offset  int             `json:"offset"`
	Count   int             `json:"count"`
	Entries []EntryResponse `json:"entries"`
}

// IndexResponse is the HTTP response for GET /tokens/index/{index}.
type IndexResponse struct {
	Index      int    `json:"index"`
	TokenID    string `json:"token_id"`
	TokenIDHex string `json:"token_id_hex"`
}

// ResolveResponse is the HTTP response for GET /resolve/{source}.
type ResolveResponse struct {
	TokenID    string `json:"token_id"`
	TokenIDHex string `json:"token_id_hex"`
	Exists     bool   `json:"exists"`
}

// BalanceResponse is the HTTP response for GET /owners/{principal}/balance.
type BalanceResponse struct {
	Owner   string `json:"owner"`
	Balance int    `json:"balance"`
}

func FromMetadata(meta models.Metadata, supply int) *RegistryResponse {
	return &RegistryResponse{
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Policy:      string(meta.Policy),
		Sentinel:    meta.Sentinel.String(),
		TotalSupply: supply,
	}
}

func FromEntry(entry *models.Entry, sentinel id.Principal) *EntryResponse {
	return &EntryResponse{
		TokenID:    entry.ID.String(),
		TokenIDHex: entry.ID.Hex(),
		URI:        entry.Source,
		Index:      entry.Index,
		State:      entry.State.Status().String(),
		Owner:      entry.OwnerAs(sentinel).String(),
		CreatedAt:  entry.CreatedAt,
	}
}

func FromEntries(entries []models.Entry, sentinel id.Principal, offset int) *ListResponse {
	out := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, *FromEntry(&entries[i], sentinel))
	}
	return &ListResponse{Offset: offset, Count: len(out), Entries: out}
}

// EventResponse is one audit record in GET /tokens/{id}/history.
type EventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Index     int       `json:"index"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	TokenID string          `json:"token_id"`
	Events  []EventResponse `json:"events"`
}

func FromEvents(tokenID id.Identifier, events []audit.Event) *HistoryResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, EventResponse{
			ID:        e.ID.String(),
			Type:      string(e.Type),
			Index:     e.Index,
			From:      e.From,
			To:        e.To,
			RequestID: e.RequestID,
			Timestamp: e.Timestamp,
		})
	}
	return &HistoryResponse{TokenID: tokenID.String(), Events: out}
}
