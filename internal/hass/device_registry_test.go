package hass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMAC(t *testing.T) {
	cases := map[string]string{
		"AA:BB:CC:DD:EE:FF": "aa:bb:cc:dd:ee:ff",
		"aa-bb-cc-dd-ee-ff": "aa:bb:cc:dd:ee:ff",
		"AABB.CCDD.EEFF":    "aa:bb:cc:dd:ee:ff",
		"AABBCCDDEEFF":      "aa:bb:cc:dd:ee:ff",
		"not-a-mac":         "not-a-mac",
		"":                  "",
		"AA:BB:CC:DD:EE":    "AA:BB:CC:DD:EE",
	}
	for in, want := range cases {
		if got := FormatMAC(in); got != want {
			t.Fatalf("FormatMAC(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeviceRegistryGetOrCreateMerges(t *testing.T) {
	registry := NewDeviceRegistry()

	first := registry.GetOrCreate("entry-1", DeviceInfo{
		Identifiers: []Identifier{{Domain: "demo", ID: "aa:bb:cc:dd:ee:ff"}},
		Connections: []Connection{{Type: ConnectionNetworkMAC, ID: "AA-BB-CC-DD-EE-FF"}},
		Name:        "Gateway",
		Model:       "UGW",
	})
	assert.Equal(t, []Connection{{Type: ConnectionNetworkMAC, ID: "aa:bb:cc:dd:ee:ff"}}, first.Connections)

	// Matched by connection only; new fields are merged in.
	second := registry.GetOrCreate("entry-1", DeviceInfo{
		Connections: []Connection{{Type: ConnectionNetworkMAC, ID: "aabbccddeeff"}},
		SWVersion:   "1.2.3",
	})
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Gateway", second.Name)
	assert.Equal(t, "1.2.3", second.SWVersion)
	assert.Len(t, registry.Devices(), 1)
}

func TestDeviceRegistryViaDevice(t *testing.T) {
	registry := NewDeviceRegistry()
	gateway := registry.GetOrCreate("entry-1", DeviceInfo{
		Identifiers: []Identifier{{Domain: "demo", ID: "aa:bb:cc:dd:ee:ff"}},
	})
	child := registry.GetOrCreate("entry-1", DeviceInfo{
		Identifiers: []Identifier{{Domain: "demo", ID: "SN1"}},
		ViaDevice:   &Identifier{Domain: "demo", ID: "aa:bb:cc:dd:ee:ff"},
	})
	assert.Equal(t, gateway.ID, child.ViaDeviceID)

	found, ok := registry.Lookup(Identifier{Domain: "demo", ID: "SN1"})
	require.True(t, ok)
	assert.Equal(t, child.ID, found.ID)

	registry.RemoveConfigEntry("entry-1")
	assert.Empty(t, registry.Devices())
}
