package protohttp

import (
	"context"
	"fmt"

	"github.com/MJE43/gameproto-dashboard/internal/protostore"
)

// Module owns the DB and the local HTTP server.
type Module struct {
	store  *protostore.Store
	server *Server

	dbPath string
	port   int
	token  string
}

// Info describes where the running server can be reached.
type Info struct {
	URL          string `json:"url"`
	DBPath       string `json:"dbPath"`
	TokenEnabled bool   `json:"tokenEnabled"`
}

// NewModule opens the store but does not start the HTTP server.
// Call Startup to begin serving.
func NewModule(dbPath string, port int, token string) (*Module, error) {
	store, err := protostore.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("protohttp: open store: %w", err)
	}
	return &Module{
		store:  store,
		dbPath: dbPath,
		port:   port,
		token:  token,
	}, nil
}

// Startup starts the local HTTP server.
func (m *Module) Startup(ctx context.Context) error {
	m.server = New(m.store, m.port, m.token)
	return m.server.Start()
}

// Shutdown stops the HTTP server and closes the DB.
func (m *Module) Shutdown(ctx context.Context) error {
	if m.server != nil {
		_ = m.server.Shutdown(ctx)
	}
	return m.store.Close()
}

// Info reports the bound URL. Only meaningful after Startup.
func (m *Module) Info() Info {
	addr := fmt.Sprintf("127.0.0.1:%d", m.port)
	if m.server != nil {
		addr = m.server.Addr()
	}
	return Info{
		URL:          "http://" + addr,
		DBPath:       m.dbPath,
		TokenEnabled: m.token != "",
	}
}
