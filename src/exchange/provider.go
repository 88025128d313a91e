package exchange

import (
	"context"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/model"
)

// Provider resolves the exchange client for one stored connection.
type Provider interface {
	ClientForConnection(ctx context.Context, connectionID uint) (Client, error)
}

// StaticProvider serves a fixed map of clients. Used by tests and by setups
// that configure a single connection from the environment.
type StaticProvider map[uint]Client

func (p StaticProvider) ClientForConnection(_ context.Context, connectionID uint) (Client, error) {
	client, ok := p[connectionID]
	if !ok {
		return nil, fmt.Errorf("client for connection %d not found: %w", connectionID, model.ErrConnectionNotFound)
	}

	return client, nil
}

// ConnectionSource is the repository surface the managed provider needs.
type ConnectionSource interface {
	FindByID(ctx context.Context, id uint) (*model.ExchangeConnection, error)
}

// CredentialDecryptor recovers the plain credential from its stored form.
type CredentialDecryptor interface {
	DecryptString(ciphertext string) (string, error)
}

// ManagedProvider builds clients on demand from stored connections and keeps
// them for reuse. Decrypted credentials live only inside the client.
type ManagedProvider struct {
	source    ConnectionSource
	decryptor CredentialDecryptor

	mu      sync.Mutex
	clients map[uint]Client
}

func NewManagedProvider(source ConnectionSource, decryptor CredentialDecryptor) *ManagedProvider {
	return &ManagedProvider{
		source:    source,
		decryptor: decryptor,
		clients:   make(map[uint]Client),
	}
}

func (p *ManagedProvider) ClientForConnection(ctx context.Context, connectionID uint) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[connectionID]; ok {
		return client, nil
	}

	conn, err := p.source.FindByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("load connection %d: %w", connectionID, err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection %d: %w", connectionID, model.ErrConnectionNotFound)
	}

	apiKey, err := p.decryptor.DecryptString(conn.APIKeyEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key for connection %d: %w", connectionID, err)
	}
	apiSecret, err := p.decryptor.DecryptString(conn.APISecretEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt api secret for connection %d: %w", connectionID, err)
	}

	logger.WithFields(map[string]interface{}{
		"component":  "ManagedProvider",
		"connection": conn.Name,
		"testnet":    conn.Testnet,
	}).Info("Building exchange client")

	client := NewBybitClient(apiKey, apiSecret, conn.Testnet)
	p.clients[connectionID] = client
	return client, nil
}

// Invalidate drops the cached client, forcing a rebuild on next use. Called
// after a connection's credentials change.
func (p *ManagedProvider) Invalidate(connectionID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, connectionID)
}
