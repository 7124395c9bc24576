package integrations

import (
	"fmt"

	"github.com/joshp123/unisenza-bridge/internal/config"
	"github.com/joshp123/unisenza-bridge/internal/core"
	"github.com/joshp123/unisenza-bridge/internal/unisenza"
	"github.com/joshp123/unisenza-bridge/internal/upgw"
)

func init() {
	Register(newUnisenza)
}

func newUnisenza(deps Deps) (core.Integration, bool, error) {
	if !config.EnabledIntegrations(deps.Config)[unisenza.Domain] {
		return nil, false, nil
	}
	opts, err := unisenzaOptions(deps.Config.UnisenzaPlus)
	if err != nil {
		return nil, false, err
	}
	opts.Logger = deps.Logger
	return unisenza.New(deps.Hass, opts), true, nil
}

func unisenzaOptions(cfg *config.UnisenzaConfig) (unisenza.Options, error) {
	var opts unisenza.Options
	if cfg == nil {
		return opts, nil
	}
	opts.MaxRequestsPerMinute = cfg.MaxRequestsPerMinute
	if cfg.BaseURL != "" {
		opts.APIOptions = append(opts.APIOptions, upgw.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TokenURL != "" {
		opts.APIOptions = append(opts.APIOptions, upgw.WithTokenURL(cfg.TokenURL))
	}
	if cfg.ClientID != "" {
		opts.APIOptions = append(opts.APIOptions, upgw.WithClientID(cfg.ClientID))
	}
	if cfg.FeedBrokerURL != "" {
		password, err := config.ReadSecretFile(cfg.FeedPasswordFile)
		if err != nil {
			return opts, fmt.Errorf("read feed password: %w", err)
		}
		opts.Feed = upgw.FeedConfig{
			BrokerURL:   cfg.FeedBrokerURL,
			Username:    cfg.FeedUsername,
			Password:    password,
			TopicPrefix: cfg.FeedTopicPrefix,
		}
	}
	return opts, nil
}
