// wabridge - WhatsApp bridge to HTTP backend adapter
// License: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grabtexts/wabridge/pkg/config"
)

func statusCmd() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	fmt.Printf("%s wabridge status\n", logo)
	fmt.Printf("Version: %s\n", formatVersion())
	fmt.Println()

	fmt.Println("Backend:", cfg.ChatURL())
	if cfg.BackendAuthToken != "" {
		fmt.Println("Auth token: ✓")
	} else {
		fmt.Println("Auth token: not set")
	}
	fmt.Println("Bridge:", cfg.BridgeURL)
	fmt.Println("Listen:", cfg.ListenAddr())

	if _, err := os.Stat(cfg.AuthStorePath); err == nil {
		fmt.Println("Auth store:", cfg.AuthStorePath, "✓")
	} else {
		fmt.Println("Auth store:", cfg.AuthStorePath, "✗ (will be created on run)")
	}

	sessionDir := filepath.Join(cfg.AuthStorePath, "session-"+cfg.ClientID)
	if _, err := os.Stat(sessionDir); err == nil {
		fmt.Println("Stored session:", sessionDir, "✓")
	} else {
		fmt.Println("Stored session: none (pairing required on run)")
	}
}
