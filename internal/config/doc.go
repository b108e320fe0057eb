// Package config handles configuration loading for helix-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Missing timing values fall back to defaults before validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from HELIX_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/helix/gateway.yaml
//  3. ~/.config/helix/gateway.yaml
//
// A path ending in .toml is decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
//	engine:
//	  api_key: "${AZURE_API_KEY}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//	  allowed_origins: ["localhost:3000"]
//
//	database:
//	  path: "/var/lib/helix/audit.db"   # empty disables the audit ledger
//
//	auth:
//	  jwt_secret: "${HELIX_JWT_SECRET}"  # protects /api/sessions
//	  allow_anonymous: false             # init without identity fields
//	  allow_inline_keys: false           # client-supplied public keys
//
//	identity:
//	  directory_url: "http://localhost:3005/api"
//	  timeout: "5s"
//
//	credentials:
//	  verify_url: "http://localhost:3005/api"      # POST {verify_url}/vps/verify
//	  token_verify_url: "http://localhost:3005/api/vp/verify"
//	  tool_gate: "presentation"                    # presentation | token
//	  timeout: "5s"
//
//	bookstore:
//	  api_url: "http://localhost:3000/api"
//	  timeout: "5s"
//
//	engine:
//	  provider: "azure"                  # azure | openai
//	  endpoint: "${AZURE_ENDPOINT}"
//	  api_key: "${AZURE_API_KEY}"
//	  api_version: "2024-12-01-preview"
//	  model: "gpt-5.2-chat"
//	  max_completion_tokens: 4096
//
//	agent:
//	  did: "did:hedera:testnet:..."
//	  name: "BookGenie AI"
//	  default_permissions: [search_books, place_order, view_inventory, check_order_status]
//	  tool_policy: "open"                # open | closed, applies to empty permission sets
//
//	session:
//	  tool_auth_timeout: "5m"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
