package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MJE43/gameproto-dashboard/internal/credentials"
	"github.com/MJE43/gameproto-dashboard/internal/dashboard"
	"github.com/MJE43/gameproto-dashboard/internal/protohttp"
)

type cli struct {
	endpoint string
	token    string
	out      io.Writer
	secrets  *credentials.KeyringStore
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("protodash", flag.ContinueOnError)
	global.Usage = usage(global)
	endpoint := global.String("endpoint", envString("PROTODASH_ENDPOINT", dashboard.DefaultBaseURL), "dashboard API base URL (env PROTODASH_ENDPOINT)")
	token := global.String("token", os.Getenv("PROTODASH_TOKEN"), "API bearer token (env PROTODASH_TOKEN, falls back to the keyring)")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return flag.ErrHelp
	}

	c := &cli{
		endpoint: *endpoint,
		token:    *token,
		out:      out,
		secrets:  credentials.NewKeyringStore("", filepath.Join(appDataDir(), secretsFileName)),
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "dashboard":
		return c.dashboard(ctx)
	case "create":
		return c.create(ctx, cmdArgs)
	case "update":
		return c.update(ctx, cmdArgs)
	case "emit":
		return c.emit(ctx, cmdArgs)
	case "watch":
		return c.watch(ctx)
	case "serve":
		return c.serve(ctx, cmdArgs)
	case "login":
		return c.login(cmdArgs)
	case "logout":
		return c.logout()
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) client() *dashboard.Client {
	token := c.token
	if token == "" {
		stored, err := c.secrets.GetAPIToken(c.endpoint)
		switch {
		case err == nil:
			token = stored
		case !errors.Is(err, credentials.ErrNotFound):
			logger.Printf("keyring lookup failed: %v", err)
		}
	}
	return dashboard.NewClient(dashboard.Config{
		BaseURL:   c.endpoint,
		APIToken:  token,
		UserAgent: "protodash/" + protohttp.Version,
	})
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ---------- client commands ----------

func (c *cli) dashboard(ctx context.Context) error {
	resp, err := c.client().GetDashboard(ctx)
	if err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c *cli) create(ctx context.Context, args []string) error {
	p, err := parseCreateArgs(args)
	if err != nil {
		return err
	}
	resp, err := c.client().CreateGamePrototype(ctx, p)
	if err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c *cli) update(ctx context.Context, args []string) error {
	id, u, err := parseUpdateArgs(args)
	if err != nil {
		return err
	}
	resp, err := c.client().UpdateGamePrototype(ctx, id, u)
	if err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c *cli) emit(ctx context.Context, args []string) error {
	id, ev, err := parseEmitArgs(args)
	if err != nil {
		return err
	}
	resp, err := c.client().EmitGameEvent(ctx, id, ev)
	if err != nil {
		return err
	}
	return c.printJSON(resp)
}

func (c *cli) watch(ctx context.Context) error {
	logger.Printf("watching %s%s (Ctrl-C to stop)", c.endpoint, dashboard.FeedPath)
	enc := json.NewEncoder(c.out)
	return c.client().WatchEvents(ctx, func(ev dashboard.GameEvent) {
		_ = enc.Encode(ev)
	})
}

// ---------- server / credential commands ----------

func (c *cli) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", envInt("PROTODASH_PORT", defaultPort), "listen port on 127.0.0.1 (env PROTODASH_PORT)")
	dbPath := fs.String("db", envString("PROTODASH_DB", ""), "SQLite database path (env PROTODASH_DB)")
	serverToken := fs.String("server-token", envString("PROTODASH_SERVER_TOKEN", ""), "require this bearer token (env PROTODASH_SERVER_TOKEN)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		*dbPath = defaultDBPath()
	}

	mod, err := protohttp.NewModule(*dbPath, *port, *serverToken)
	if err != nil {
		return err
	}
	if err := mod.Startup(ctx); err != nil {
		mod.Shutdown(context.Background())
		return fmt.Errorf("start server: %w", err)
	}
	info := mod.Info()
	logger.Printf("dashboard API ready at %s (db %s, token enabled: %v)", info.URL, info.DBPath, info.TokenEnabled)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mod.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Println("server stopped")
	return nil
}

func (c *cli) login(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	token := fs.String("token", "", "API token to store")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*token) == "" {
		return errors.New("login: -token is required")
	}
	if err := c.secrets.SetAPIToken(c.endpoint, *token); err != nil {
		return err
	}
	logger.Printf("token stored for %s", credentials.ProfileKey(c.endpoint))
	return nil
}

func (c *cli) logout() error {
	if err := c.secrets.Delete(c.endpoint); err != nil {
		return err
	}
	logger.Printf("token removed for %s", credentials.ProfileKey(c.endpoint))
	return nil
}

// ---------- argument parsing ----------

type prototypeFlags struct {
	id, name, description, gameID, playerID *string
	score, lives, level                     *int
}

func newPrototypeFlags(fs *flag.FlagSet) prototypeFlags {
	return prototypeFlags{
		id:          fs.String("id", "", "prototype id"),
		name:        fs.String("name", "", "display name"),
		description: fs.String("description", "", "description"),
		gameID:      fs.String("game-id", "", "game id"),
		playerID:    fs.String("player-id", "", "player id"),
		score:       fs.Int("score", 0, "score"),
		lives:       fs.Int("lives", 0, "lives"),
		level:       fs.Int("level", 0, "level"),
	}
}

func parseCreateArgs(args []string) (dashboard.GamePrototype, error) {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	f := newPrototypeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return dashboard.GamePrototype{}, err
	}
	return dashboard.GamePrototype{
		ID:          *f.id,
		Name:        *f.name,
		Description: *f.description,
		GameID:      *f.gameID,
		PlayerID:    *f.playerID,
		GameplayState: dashboard.GameplayState{
			Score: *f.score,
			Lives: *f.lives,
			Level: *f.level,
		},
	}, nil
}

// parseUpdateArgs builds a patch from only the flags that were set.
func parseUpdateArgs(args []string) (string, dashboard.PrototypeUpdate, error) {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	f := newPrototypeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return "", dashboard.PrototypeUpdate{}, err
	}
	if *f.id == "" {
		return "", dashboard.PrototypeUpdate{}, errors.New("update: -id is required")
	}

	var u dashboard.PrototypeUpdate
	counters := 0
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			u.Name = f.name
		case "description":
			u.Description = f.description
		case "game-id":
			u.GameID = f.gameID
		case "player-id":
			u.PlayerID = f.playerID
		case "score", "lives", "level":
			counters++
		}
	})
	switch counters {
	case 0:
	case 3:
		u.GameplayState = &dashboard.GameplayState{Score: *f.score, Lives: *f.lives, Level: *f.level}
	default:
		return "", dashboard.PrototypeUpdate{}, errors.New("update: set -score, -lives and -level together, or use emit for a single counter")
	}
	if u.IsEmpty() {
		return "", dashboard.PrototypeUpdate{}, errors.New("update: nothing to change")
	}
	return *f.id, u, nil
}

func parseEmitArgs(args []string) (string, dashboard.GameEvent, error) {
	fs := flag.NewFlagSet("emit", flag.ContinueOnError)
	id := fs.String("id", "", "prototype id")
	kind := fs.String("type", "", "score, lives or level (or UPDATE_SCORE, ...)")
	value := fs.Int("value", 0, "new counter value")
	if err := fs.Parse(args); err != nil {
		return "", dashboard.GameEvent{}, err
	}
	if *id == "" {
		return "", dashboard.GameEvent{}, errors.New("emit: -id is required")
	}

	switch strings.TrimPrefix(strings.ToUpper(*kind), "UPDATE_") {
	case "SCORE":
		return *id, dashboard.ScoreEvent(*value), nil
	case "LIVES":
		return *id, dashboard.LivesEvent(*value), nil
	case "LEVEL":
		return *id, dashboard.LevelEvent(*value), nil
	}
	return "", dashboard.GameEvent{}, fmt.Errorf("emit: unknown event type %q", *kind)
}
