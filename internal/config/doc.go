// Package config loads the treesync configuration.
//
// Settings are resolved in layers, higher layers overriding lower ones:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← TREESYNC_SYNC_MAX_TREE_DEPTH=64
//	├─────────────────────────────┤
//	│  2. Config File             │  ← treesync.toml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// # File Format
//
//	[sync]
//	max_tree_depth = 256
//	workers = 1
//	auto_commit = true
//	max_retries = 8
//	consistency_check = true
//
//	[logging]
//	level = "info"
//
// # Live Reload
//
// A Watcher observes the config file and hands every successfully loaded
// revision to a callback:
//
//	w, err := config.Watch(ctx, "treesync.toml", func(cfg config.Config, err error) {
//	    if err == nil {
//	        engine.Reconfigure(cfg)
//	    }
//	})
package config
