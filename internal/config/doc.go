// Package config handles configuration loading for tallkotte.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from TALLKOTTE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/tallkotte/config.yaml (~/.config when unset)
//
// Files ending in .toml are read as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	runs:
//	  wait_delay: "2s"
//	  max_wait: "60s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  upload_dir: "/var/lib/tallkotte/uploads"   # default: $TMPDIR/tallkotte/uploads
//	  max_upload_bytes: 33554432
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//	  model: "gpt-4o"
//	  assistant_id: ""          # reuse an existing assistant
//	  max_retries: 0            # unset keeps the SDK default; 0 disables retries
//
//	assistant:                  # used when assistant_id is empty
//	  name: "tallkotte"
//	  instructions: "You help recruiters read CVs."
//	  tools: ["file_search"]
//	  init_message: "Here are the files."
//
//	database:
//	  driver: "mongo"           # mongo, sqlite, memory
//	  uri: "mongodb://localhost:27017"
//	  name: "tallkotte"
//	  path: "./tallkotte.db"    # sqlite only
//
//	cache:
//	  driver: "redis"           # redis, memory
//	  addr: "localhost:6379"
//	  ttl: "24h"
//
//	runs:
//	  wait_delay: "2s"
//	  max_wait: "60s"
//	  workers: 5
//
//	logging:
//	  level: "info"             # debug, info, warn, error
//	  format: "text"            # text, json
package config
