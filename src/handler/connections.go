package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
	"tradecontrol/src/security"
)

type connectionStore interface {
	Create(ctx context.Context, c *model.ExchangeConnection) error
	ListActive(ctx context.Context) ([]model.ExchangeConnection, error)
}

// ListConnectionsHandler returns the active exchange connections. Credentials
// never appear in the payload.
func ListConnectionsHandler(store connectionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conns, err := store.ListActive(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list connections")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(conns); err != nil {
			logger.WithError(err).Error("failed to encode connections")
		}
	}
}

// CreateConnectionHandler stores a new credential set, encrypting the key
// and secret before they touch the database.
func CreateConnectionHandler(store connectionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name      string `json:"name"`
			Exchange  string `json:"exchange"`
			APIKey    string `json:"api_key"`
			APISecret string `json:"api_secret"`
			Testnet   bool   `json:"testnet"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
			body.Name == "" || body.APIKey == "" || body.APISecret == "" {
			http.Error(w, "name, api_key and api_secret are required", http.StatusBadRequest)
			return
		}

		keyEnc, err := security.EncryptString(body.APIKey)
		if err != nil {
			logger.WithError(err).Error("failed to encrypt api key")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		secretEnc, err := security.EncryptString(body.APISecret)
		if err != nil {
			logger.WithError(err).Error("failed to encrypt api secret")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		conn := &model.ExchangeConnection{
			Name:         body.Name,
			Exchange:     body.Exchange,
			APIKeyEnc:    keyEnc,
			APISecretEnc: secretEnc,
			Testnet:      body.Testnet,
			Active:       true,
		}
		if conn.Exchange == "" {
			conn.Exchange = "bybit"
		}

		if err := store.Create(r.Context(), conn); err != nil {
			logger.WithError(err).Error("failed to create connection")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(conn); err != nil {
			logger.WithError(err).Error("failed to encode created connection")
		}
	}
}
