package dispatcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfigXML = `<?xml version="1.0" encoding="utf-8"?>
<configuration version="1.0">
  <serviceInfo>
    <serviceName>weather</serviceName>
    <userName>nobody</userName>
    <messagingIn>/tmp/weather.in.sock</messagingIn>
    <messagingOut>/tmp/weather.out.sock</messagingOut>
    <maxNumMsg>10</maxNumMsg>
    <maxMsgSize>4096</maxMsgSize>
  </serviceInfo>
  <publishedMessage>
    <message id="256">temperature update</message>
  </publishedMessage>
  <subscribedMessage>
    <message id="512">control command</message>
  </subscribedMessage>
</configuration>
`

func writeTempConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseServiceConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTempConfig(t, dir, "weather.xml", sampleConfigXML)

	cfg, err := ParseServiceConfigFile(path)
	require.NoError(t, err)
	require.Equal(t, "weather", cfg.Name)
	require.Equal(t, uint32(10), cfg.MaxNumMsg)
	require.Equal(t, uint32(4096), cfg.MaxMsgSize)
	require.Len(t, cfg.Published, 1)
	require.Equal(t, uint32(256), cfg.Published[0].ID)
	require.Len(t, cfg.Subscribed, 1)
	require.Equal(t, uint32(512), cfg.Subscribed[0].ID)
}

func TestScanConfigDirSkipsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeTempConfig(t, dir, "good.xml", sampleConfigXML)
	writeTempConfig(t, dir, "bad.xml", "<configuration><serviceInfo></serviceInfo></configuration>")
	writeTempConfig(t, dir, "notxml.txt", "ignore me")

	configs, err := ScanConfigDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "weather", configs[0].Name)
}

func TestValidateServiceConfigRejectsOutOfRangeLimits(t *testing.T) {
	dir := t.TempDir()
	bad := `<configuration version="1.0"><serviceInfo>
    <serviceName>s</serviceName><userName>u</userName>
    <messagingIn>/tmp/a</messagingIn><messagingOut>/tmp/b</messagingOut>
    <maxNumMsg>0</maxNumMsg><maxMsgSize>10</maxMsgSize>
  </serviceInfo></configuration>`
	path := writeTempConfig(t, dir, "bad.xml", bad)

	_, err := ParseServiceConfigFile(path)
	require.Error(t, err)
}
