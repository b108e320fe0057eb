// ABOUTME: Entry point for helix-gateway, the credential-gated bookstore agent gateway
// ABOUTME: Subcommands serve the gateway, probe it, and mint operator tokens

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/helix-gateway/internal/auth"
	"github.com/2389/helix-gateway/internal/config"
	"github.com/2389/helix-gateway/internal/gateway"
)

// version is set at build time.
var version = "dev"

const banner = `
  _          _ _
 | |__   ___| (_)_  __      __ _  __ _| |_ _____      ____ _ _   _
 | '_ \ / _ \ | \ \/ /____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | | | |  __/ | |>  <_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |_| |_|\___|_|_/_/\_\     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                           |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: HELIX_CONFIG env var > XDG_CONFIG_HOME/helix/gateway.yaml > ~/.config/helix/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HELIX_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "helix", "gateway.yaml")
}

func usage() {
	fmt.Println("Usage: helix-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                         Start the gateway server")
	fmt.Println("  health                        Check gateway health")
	fmt.Println("  sessions                      List active chat sessions")
	fmt.Println("  audit <session_id>            Show the audit log of a session")
	fmt.Println("  token [--subject S] [--ttl D] Mint an operator API token")
	fmt.Println()
	fmt.Println("Operator commands read the token from HELIX_TOKEN.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runGet(ctx, "/api/sessions")
	case "audit":
		if len(os.Args) < 3 {
			err = fmt.Errorf("audit requires a session id")
			break
		}
		err = runGet(ctx, auditPath(os.Args[2]))
	case "token":
		err = runToken(os.Args[2:])
	case "help", "-h", "--help":
		usage()
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

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s ", cfg.Agent.Name)
	gray.Println(cfg.Agent.DID)
	green.Print("    ▶ ")
	fmt.Printf("Engine:    %s/%s\n", cfg.Engine.Provider, cfg.Engine.Model)
	green.Print("    ▶ ")
	fmt.Printf("Tool gate: %s\n", cfg.Credentials.ToolGate)
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	}
	if cfg.Auth.AllowInlineKeys {
		yellow.Println("    ! inline public keys accepted")
	}
	if cfg.Auth.AllowAnonymous {
		yellow.Println("    ! anonymous sessions accepted")
	}
	fmt.Println()

	logger.Info("starting helix-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// auditPath builds the audit endpoint for a session id.
func auditPath(sessionID string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + "/audit"
}

// clientAddr turns a listen address into one a local client can dial.
func clientAddr(addr string) string {
	if strings.HasPrefix(addr, "0.0.0.0:") {
		return "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	}
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	endpoint := fmt.Sprintf("http://%s/health", clientAddr(cfg.Server.HTTPAddr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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

// runGet calls an operator endpoint and prints the JSON body.
func runGet(ctx context.Context, path string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	endpoint := fmt.Sprintf("http://%s%s", clientAddr(cfg.Server.HTTPAddr), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if token := os.Getenv("HELIX_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// runToken mints an operator JWT with the configured secret.
// Supports both "--flag value" and "--flag=value" formats.
func runToken(args []string) error {
	subject := "operator"
	ttl := 24 * time.Hour

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--subject", "-s", "--ttl":
			if !hasValue {
				if i+1 >= len(args) {
					return fmt.Errorf("%s requires a value", name)
				}
				value = args[i+1]
				i++
			}
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}

		if name == "--ttl" {
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid --ttl %q", value)
			}
			ttl = d
		} else {
			subject = strings.TrimSpace(value)
		}
	}
	if subject == "" {
		return fmt.Errorf("subject cannot be empty")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured; the operator API is open")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}
