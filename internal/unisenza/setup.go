package unisenza

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/joshp123/unisenza-bridge/internal/hass"
	"github.com/joshp123/unisenza-bridge/internal/upgw"
)

// SetupEntry connects to the vendor cloud with the entry's credentials,
// registers the gateways and forwards the climate platform.
func (i *Integration) SetupEntry(ctx context.Context, h *hass.HomeAssistant, entry *hass.ConfigEntry) error {
	h.Data.Ensure(Domain)

	username, err := entry.String(hass.ConfUsername)
	if err != nil {
		return hass.NewConfigEntryAuthFailed("Unable to authenticate", err)
	}
	password, err := entry.String(hass.ConfPassword)
	if err != nil {
		return hass.NewConfigEntryAuthFailed("Unable to authenticate", err)
	}

	api, err := i.create(ctx, username, password)
	if err != nil {
		var authErr *upgw.AuthenticationError
		if errors.As(err, &authErr) {
			return hass.NewConfigEntryAuthFailed("Unable to authenticate", err)
		}
		return hass.NewConfigEntryNotReady("Unable to connect", err)
	}

	client := upgw.NewClient(api)
	if err := populate(ctx, client); err != nil {
		_ = client.Close()
		return hass.NewConfigEntryNotReady("Unable to retrieve data from upstream", err)
	}

	for _, gateway := range client.GetGateways() {
		mac := hass.FormatMAC(gateway.MACAddress())
		h.DeviceRegistry.GetOrCreate(entry.EntryID, hass.DeviceInfo{
			Connections: []hass.Connection{{Type: hass.ConnectionNetworkMAC, ID: mac}},
			Identifiers: []hass.Identifier{{Domain: Domain, ID: mac}},
			Model:       gateway.Model(),
			Name:        gateway.Name(),
			SWVersion:   gateway.FirmwareVersion(),
		})
	}

	if i.feed.BrokerURL != "" {
		if err := client.StartChangeFeed(i.feed, i.logger); err != nil {
			// Entities still work from command responses and explicit updates.
			i.logger.WithError(err).WithField("entry_id", entry.EntryID).Warn("vendor change feed unavailable")
		}
	}

	h.Data.Put(Domain, entry.EntryID, client)

	if err := h.ConfigEntries.ForwardEntrySetups(ctx, entry, i.platforms); err != nil {
		h.Data.Pop(Domain, entry.EntryID)
		_, _ = h.ConfigEntries.UnloadPlatforms(ctx, entry, i.platforms)
		_ = client.Close()
		return fmt.Errorf("forward platforms: %w", err)
	}

	i.logger.WithFields(logrus.Fields{
		"entry_id": entry.EntryID,
		"gateways": len(client.GetGateways()),
		"devices":  len(client.GetDevices()),
	}).Info("unisenza plus entry set up")
	return nil
}

func populate(ctx context.Context, client *upgw.Client) error {
	if err := client.PopulateDevices(ctx); err != nil {
		return err
	}
	return client.RefreshAllDevices(ctx)
}

// UnloadEntry unloads the forwarded platforms and, when that succeeds,
// releases the vendor client.
func (i *Integration) UnloadEntry(ctx context.Context, h *hass.HomeAssistant, entry *hass.ConfigEntry) (bool, error) {
	ok, err := h.ConfigEntries.UnloadPlatforms(ctx, entry, i.platforms)
	if err != nil || !ok {
		return ok, err
	}
	if value, found := h.Data.Pop(Domain, entry.EntryID); found {
		if client, isClient := value.(*upgw.Client); isClient {
			if err := client.Close(); err != nil {
				i.logger.WithError(err).WithField("entry_id", entry.EntryID).Warn("closing vendor client failed")
			}
		}
	}
	return true, nil
}
