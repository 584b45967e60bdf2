// Package config holds the immutable configuration of an embedded broker.
//
// A Config is produced by a Builder. Build applies defaults and derives the
// download URL, the download target file and the installed application
// folder exactly once; a Config is never mutated afterwards.
//
// Basic usage:
//
//	cfg, err := config.NewBuilder().
//		Version(artifact.V3_8_19).
//		RandomPort().
//		ServerInitTimeout(20 * time.Second).
//		Build()
//
// Settings can also come from a config file (LoadFile, Lua or TOML) and from
// EMBEDMQ_* environment variables (ApplyEnv). Apply them to the same Builder
// in increasing order of precedence.
//
// # Lua config format
//
// Lua files run in a sandbox (no os, io or module loading) with a read-only
// platform table and must define a global embedmq table:
//
//	embedmq = {
//	  version = "3.8.19",
//	  port = -1,
//	  server_init_timeout = "20s",
//	  download_folder = platform.is_windows and "C:/cache/rabbit" or nil,
//	  env = { RABBITMQ_NODENAME = "rabbit@localhost" },
//	}
package config
