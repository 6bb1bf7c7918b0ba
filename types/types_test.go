package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRoundTrip(t *testing.T) {
	ip, err := ParseIP("192.168.1.50")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", ip.String())

	v, err := ip.Value()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50", v)

	var scanned IP
	require.NoError(t, scanned.Scan("192.168.1.50"))
	assert.Equal(t, "192.168.1.50", scanned.String())
	require.NoError(t, scanned.Scan(nil))

	buf, err := json.Marshal(ip)
	require.NoError(t, err)
	assert.Equal(t, `"192.168.1.50"`, string(buf))

	var decoded IP
	require.NoError(t, json.Unmarshal(buf, &decoded))
	assert.Equal(t, "192.168.1.50", decoded.String())

	_, err = ParseIP("not-an-ip")
	assert.Error(t, err)
}

func TestHardwareAddrRoundTrip(t *testing.T) {
	mac, err := ParseMAC("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac.String())

	v, err := mac.Value()
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", v)

	var scanned HardwareAddr
	require.NoError(t, scanned.Scan("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", scanned.String())

	var decoded HardwareAddr
	require.NoError(t, json.Unmarshal([]byte(`"aa:bb:cc:dd:ee:ff"`), &decoded))
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", decoded.String())

	_, err = ParseMAC("zz:zz")
	assert.Error(t, err)
}

func TestEqualMAC(t *testing.T) {
	assert.True(t, EqualMAC("AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff"))
	assert.False(t, EqualMAC("aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:00"))
}
