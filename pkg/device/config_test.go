package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/pinvault/pkg/pin"
)

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "vault.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfigEnv(t *testing.T) {
	env := map[string]string{
		"VAULT_LISTEN":    "tcp://:7070",
		"VAULT_DIGIT_MAX": "9",
		"VAULT_PULSE_GAP": "2s",
	}
	conf := NewConfig()
	require.NoError(t, conf.applyEnv(func(name string) string { return env[name] }))
	require.Equal(t, "tcp://:7070", conf.Listen)
	require.Equal(t, 9, conf.DigitMax)
	require.Equal(t, 2*time.Second, conf.PulseGap)
	require.Equal(t, defaultConfig.LED, conf.LED)

	env["VAULT_DIGIT_MIN"] = "one"
	require.Error(t, conf.applyEnv(func(name string) string { return env[name] }))
}

func TestConfigLoadFile(t *testing.T) {
	conf := NewConfig()
	conf.EventsURL = "mqtt://broker:1883/vault/"
	path := writeConfigFile(t, `
listen = " ws://:8080/vault "
led = "sysfs:led0"
digit_min = 2
digit_max = 7
pulse_on = "250ms"
`)
	require.NoError(t, conf.LoadFile(path))
	require.Equal(t, "ws://:8080/vault", conf.Listen)
	require.Equal(t, "sysfs:led0", conf.LED)
	require.Equal(t, pin.Range{Min: 2, Max: 7}, conf.Range())
	require.Equal(t, 250*time.Millisecond, conf.Timing().On)
	require.Equal(t, defaultConfig.PulseOff, conf.Timing().Off)
	// keys not in the file are kept.
	require.Equal(t, "mqtt://broker:1883/vault/", conf.EventsURL)
	require.NoError(t, conf.Validate())
}

func TestConfigLoadFileErrors(t *testing.T) {
	for _, content := range []string{
		`pulse_gap = "soon"`,
		`baud = 9600`,
		`listen = `,
	} {
		conf := NewConfig()
		require.Error(t, conf.LoadFile(writeConfigFile(t, content)), content)
	}
	require.Error(t, NewConfig().LoadFile(filepath.Join(t.TempDir(), "missing.toml")))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, NewConfig().Validate())

	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"no listen", func(c *Config) { c.Listen = "" }},
		{"zero digit", func(c *Config) { c.DigitMin = 0 }},
		{"two digit", func(c *Config) { c.DigitMax = 10 }},
		{"wrapping digit", func(c *Config) { c.DigitMax = 257 }},
		{"negative digit", func(c *Config) { c.DigitMin = -1 }},
		{"reversed", func(c *Config) { c.DigitMin, c.DigitMax = 5, 3 }},
		{"negative pulse", func(c *Config) { c.PulseOff = -time.Second }},
		{"unknown led", func(c *Config) { c.LED = "blink" }},
		{"unnamed sysfs led", func(c *Config) { c.LED = LEDSysfs }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := NewConfig()
			tc.modify(conf)
			require.Error(t, conf.Validate())
		})
	}
}

func TestDeviceID(t *testing.T) {
	require.NotEmpty(t, DeviceID())
	require.Equal(t, DeviceID(), DeviceID())
}
