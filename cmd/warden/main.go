// ABOUTME: Entry point for the warden S2S facade server
// ABOUTME: Provides serve, init, seed, and health subcommands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/facade"
	"github.com/2389/warden/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                         _
__      ____ _ _ __ __| | ___ _ __
\ \ /\ / / _' | '__/ _' |/ _ \ '_ \
 \ V  V / (_| | | | (_| |  __/ | | |
  \_/\_/ \__,_|_|  \__,_|\___|_| |_|
`

// getConfigPath returns the path to the warden config file.
// Priority: WARDEN_CONFIG env var > XDG_CONFIG_HOME/warden/warden.yaml > ~/.config/warden/warden.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WARDEN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "warden.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "warden", "warden.yaml")
}

// getDataPath returns the path to the warden data directory.
// Priority: XDG_DATA_HOME/warden > ~/.local/share/warden
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "warden")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: warden <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                     Start the facade server")
		fmt.Println("  init                      Create a new config file interactively")
		fmt.Println("  seed --realm NAME ...     Create a realm with an admin and trusted group")
		fmt.Println("  health                    Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "seed":
		err = runSeed(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Auth mode: %s\n", cfg.S2S.AuthMode)

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting warden",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"auth_mode", cfg.S2S.AuthMode,
	)

	srv, err := facade.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating facade: %w", err)
	}

	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runSeed creates a realm with its first admin, the trusted operator group,
// and a general stream carrying a welcome message. The admin is immediately
// usable as a tool invoker.
func runSeed(ctx context.Context) error {
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	realmName := fs.String("realm", "", "realm name (required)")
	realmHost := fs.String("host", "", "realm host, e.g. acme.example.com (required)")
	adminEmail := fs.String("email", "", "admin email (required)")
	adminName := fs.String("name", "Administrator", "admin full name")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *realmName == "" || *realmHost == "" || *adminEmail == "" {
		return fmt.Errorf("--realm, --host, and --email are required")
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	realm := &store.Realm{Name: *realmName, Host: *realmHost}
	if err := s.CreateRealm(ctx, realm); err != nil {
		return fmt.Errorf("creating realm: %w", err)
	}
	green.Printf("  ✓ Created realm %q (id %d)\n", realm.Name, realm.ID)

	admin := &store.User{
		RealmID:  realm.ID,
		Email:    *adminEmail,
		FullName: *adminName,
		Role:     store.RoleAdmin,
		IsActive: true,
	}
	if err := s.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}
	green.Printf("  ✓ Created admin %s (id %d)\n", admin.Email, admin.ID)

	group := &store.Group{RealmID: realm.ID, Name: cfg.S2S.TrustedGroup}
	if err := s.CreateGroup(ctx, group); err != nil {
		return fmt.Errorf("creating trusted group: %w", err)
	}
	if err := s.AddGroupMember(ctx, group.ID, admin.ID); err != nil {
		return fmt.Errorf("adding admin to trusted group: %w", err)
	}
	green.Printf("  ✓ Created group %q with the admin as its first member\n", group.Name)

	stream := &store.Stream{RealmID: realm.ID, Name: "general", Description: "General discussion"}
	if err := s.CreateStream(ctx, stream); err != nil {
		return fmt.Errorf("creating stream: %w", err)
	}
	if err := s.Subscribe(ctx, stream.ID, admin.ID); err != nil {
		return fmt.Errorf("subscribing admin: %w", err)
	}

	msg := &store.Message{
		RealmID:  realm.ID,
		SenderID: admin.ID,
		StreamID: stream.ID,
		Topic:    "welcome",
		Content:  "Realm created.",
	}
	if err := s.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("saving welcome message: %w", err)
	}
	green.Printf("  ✓ Created stream #general with a welcome message (id %d)\n", msg.ID)

	fmt.Println()
	cyan.Println("  Invoker reference for S2S calls")
	cyan.Println("  -------------------------------")
	fmt.Printf("  realm_id:           %d\n", realm.ID)
	fmt.Printf("  invoker_user_id:    %d\n", admin.ID)
	fmt.Printf("  invoker_message_id: %d\n", msg.ID)
	fmt.Println()

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("warden configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "warden.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// S2S auth
	fmt.Println("\n--- S2S Authentication ---")
	authMode := prompt(reader, "Auth mode (legacy/signed/both)", "both")
	sharedSecret := prompt(reader, "Shared secret (leave empty to generate)", "")
	if sharedSecret == "" {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating shared secret: %w", err)
		}
		sharedSecret = base64.StdEncoding.EncodeToString(secretBytes)
		fmt.Println("Generated a random shared secret.")
	}

	// Tailscale
	fmt.Println("\n--- Tailscale Configuration ---")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.ToLower(enableTailscale) == "yes" || strings.ToLower(enableTailscale) == "y"

	var tsHostname, tsAuthKey string
	var tsEphemeral bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "warden")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.ToLower(ephemeralStr) == "yes" || strings.ToLower(ephemeralStr) == "y"
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# warden configuration\n")
	cfg.WriteString("# Generated by warden init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("s2s:\n")
	cfg.WriteString(fmt.Sprintf("  shared_secret: \"%s\"\n", sharedSecret))
	cfg.WriteString(fmt.Sprintf("  auth_mode: \"%s\"\n", authMode))
	cfg.WriteString("  signing_tolerance: \"5m\"\n")
	cfg.WriteString("  proof_max_age: \"10m\"\n")
	cfg.WriteString("  idempotency_ttl: \"30m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
	}
	cfg.WriteString("\n")

	cfg.WriteString("branding:\n")
	cfg.WriteString("  name: \"Warden\"\n")
	cfg.WriteString("  support_email: \"\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  warden serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
