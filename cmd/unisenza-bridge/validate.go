package main

import (
	"flag"
	"fmt"

	"github.com/joshp123/unisenza-bridge/internal/config"
)

func validateMain(args []string) {
	flags := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("UNISENZA_CONFIG", config.DefaultPath), "Path to config.json")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("validate", err)
	}
	if cfg.Store.MirrorEnabled() {
		for _, path := range []string{cfg.Store.BlobAccessKeyFile, cfg.Store.BlobSecretKeyFile} {
			if _, err := config.ReadSecretFile(path); err != nil {
				fatal("validate", err)
			}
		}
	}
	if _, err := config.ReadSecretFile(cfg.MQTT.PasswordFile); err != nil {
		fatal("validate", err)
	}
	fmt.Printf("config ok: mqtt=%s discovery=%s/%s entries=%s\n",
		cfg.MQTT.BrokerURL, cfg.Discovery.Prefix, cfg.Discovery.BaseTopic, cfg.Store.EntriesPath)
}
