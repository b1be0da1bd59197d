package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pcap "github.com/packetcap/go-pcapwire"
)

func TestSetup(t *testing.T) {
	defer func() {
		log.SetLevel(log.InfoLevel)
		log.SetReportCaller(false)
		log.SetFormatter(&log.TextFormatter{})
		log.SetOutput(os.Stderr)
	}()
	var buf bytes.Buffer

	require.NoError(t, Setup(&buf, "debug", "json"))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	log.WithField("capture", "a.pcap").Debug("loaded")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "loaded", entry["msg"])
	assert.Equal(t, "a.pcap", entry["capture"])
	assert.Equal(t, "TestSetup()", entry["func"])
	assert.Contains(t, entry["file"], "logging_test.go:")

	buf.Reset()
	require.NoError(t, Setup(&buf, "warn", "text"))
	log.Info("hidden")
	assert.Empty(t, buf.String())
	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	assert.Error(t, Setup(&buf, "loud", "text"))
}

// the caller location logrus adds at debug level must not hide the capture name
func TestSetupKeepsCaptureName(t *testing.T) {
	defer func() {
		log.SetLevel(log.InfoLevel)
		log.SetReportCaller(false)
		log.SetFormatter(&log.TextFormatter{})
		log.SetOutput(os.Stderr)
	}()
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "debug", "json"))

	f := pcap.NewFile(pcap.NewMemStorage())
	require.NoError(t, f.Save("a.pcap", pcap.NewGlobalHeader(pcap.DefaultSnaplen, pcap.LinkTypeEthernet)))
	_, err := f.Load("a.pcap")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "a.pcap", entry["capture"], line)
		assert.Contains(t, entry["file"], "file.go:", line)
		assert.NotContains(t, entry, "fields.file", line)
	}
}
