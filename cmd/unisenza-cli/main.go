package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshp123/unisenza-bridge/internal/config"
)

var (
	grpcAddr   string
	httpAddr   string
	configPath string
	jsonOutput bool
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "unisenza-cli",
	Short:         "Inspect and configure a running unisenza-bridge",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&grpcAddr, "grpc-addr", "", "gRPC address (default from config or UNISENZA_GRPC_ADDR)")
	flags.StringVar(&httpAddr, "http-addr", "", "HTTP address (default from config or UNISENZA_HTTP_ADDR)")
	flags.StringVar(&configPath, "config", config.DefaultPath, "Path to config.json used to resolve addresses")
	flags.BoolVar(&jsonOutput, "json", false, "Output JSON")
	flags.DurationVar(&timeout, "timeout", 20*time.Second, "Request timeout")

	rootCmd.AddCommand(servicesCmd, methodsCmd, callCmd, healthCmd)
	rootCmd.AddCommand(integrationsCmd, entriesCmd, loginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func output() outputMode {
	return outputMode{json: jsonOutput}
}

func resolveGRPCAddr() string {
	if grpcAddr != "" {
		return grpcAddr
	}
	if value := os.Getenv("UNISENZA_GRPC_ADDR"); value != "" {
		return value
	}
	if cfg, err := config.Load(configPath); err == nil {
		return dialable(cfg.Core.GRPCAddr)
	}
	return "localhost:9000"
}

func resolveHTTPAddr() string {
	if httpAddr != "" {
		return httpAddr
	}
	if value := os.Getenv("UNISENZA_HTTP_ADDR"); value != "" {
		return value
	}
	if cfg, err := config.Load(configPath); err == nil {
		return dialable(cfg.Core.HTTPAddr)
	}
	return "localhost:8080"
}
