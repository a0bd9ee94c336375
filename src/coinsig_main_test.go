package coinsig

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyConfig keeps the commands away from any system configuration.
func emptyConfig(t *testing.T) string {
	t.Helper()
	var path = filepath.Join(t.TempDir(), "coinsig.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o644))
	return path
}

func Test_genThenDecodeCoins(t *testing.T) {
	var conf = emptyConfig(t)
	var wav = filepath.Join(t.TempDir(), "deposit.wav")
	var stderr bytes.Buffer

	require.NoError(t, genMain(t.Context(), "coinsig-gen", []string{"-c", conf, "-o", wav, "--coins", "25,10,5,5"}, &stderr))

	var stdout bytes.Buffer
	require.NoError(t, decodeMain(t.Context(), "coinsig-decode", []string{"-c", conf, "--amount", "40", wav}, &stdout, &stderr))

	var out = stdout.String()
	assert.Equal(t, 4, strings.Count(out, "CoinDeposit RX"), out)
	assert.Contains(t, out, "CoinDeposit RX beeps=5 credited=5 total=25")
	assert.Contains(t, out, "CoinThreshold RX total=40")
	assert.Contains(t, out, wav+": 45 cents")
}

func Test_genThenDecodeWait(t *testing.T) {
	var conf = emptyConfig(t)
	var wav = filepath.Join(t.TempDir(), "deposit.wav")
	var stderr bytes.Buffer

	require.NoError(t, genMain(t.Context(), "coinsig-gen", []string{"-c", conf, "-o", wav, "-r", "16000", "--coins", "10,10"}, &stderr))

	var stdout bytes.Buffer
	require.NoError(t, decodeMain(t.Context(), "coinsig-decode", []string{"-c", conf, "--wait", "-m", "$0.15", wav}, &stdout, &stderr))
	assert.Equal(t, wav+": SUCCESS 20 cents\n", stdout.String())

	stdout.Reset()
	require.NoError(t, decodeMain(t.Context(), "coinsig-decode", []string{"-c", conf, "--wait", "-m", "25", wav}, &stdout, &stderr))
	assert.Equal(t, wav+": HANGUP 20 cents\n", stdout.String())
}

func Test_genThenDecodeDisposition(t *testing.T) {
	var conf = emptyConfig(t)
	var dir = t.TempDir()
	var wav = filepath.Join(dir, "collect.wav")
	var events = filepath.Join(dir, "events.csv")
	var stderr bytes.Buffer

	require.NoError(t, genMain(t.Context(), "coinsig-gen", []string{"-c", conf, "-o", wav, "-d", "collect"}, &stderr))

	var stdout bytes.Buffer
	require.NoError(t, decodeMain(t.Context(), "coinsig-decode", []string{"-c", conf, "--eis", "--json", "-L", events, wav}, &stdout, &stderr))

	var lines = strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2, stdout.String())

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, EventDisposition, ev.Type)
	assert.Equal(t, "CoinCollect", ev.Disposition)
	require.NotNil(t, ev.Identity)
	assert.Equal(t, wav, ev.Identity.Channel)

	assert.Equal(t, wav+": 0 cents", lines[1])
	assert.Len(t, readCSV(t, events), 2)
}

func Test_genLegacyHasNoDigit(t *testing.T) {
	var conf = emptyConfig(t)
	var wav = filepath.Join(t.TempDir(), "return.wav")
	var stderr bytes.Buffer

	require.NoError(t, genMain(t.Context(), "coinsig-gen", []string{"-c", conf, "-o", wav, "-d", "return", "-s", "legacy", "--wink-tone", "2600"}, &stderr))

	var stdout bytes.Buffer
	require.NoError(t, decodeMain(t.Context(), "coinsig-decode", []string{"-c", conf, "--eis", wav}, &stdout, &stderr))
	assert.Equal(t, wav+": 0 cents\n", stdout.String())
}

func Test_commandErrors(t *testing.T) {
	var conf = emptyConfig(t)
	var stderr, stdout bytes.Buffer
	var wav = filepath.Join(t.TempDir(), "x.wav")

	for _, args := range [][]string{
		{"-c", conf},
		{"-c", conf, "-o", wav},
		{"-c", conf, "-o", wav, "--coins", "7"},
		{"-c", conf, "-o", wav, "--coins", "a quarter"},
		{"-c", conf, "-o", wav, "--digits", "123", "--mode", "pulse"},
		{"-c", conf, "-o", wav, "-d", "collectreleased", "-s", "legacy"},
		{"-c", conf, "--line"},
		{"-c", conf, "--line", "-d", "collect"},
		{"-c", conf, "--line", "-d", "collect", "-s", "legacy"},
		{"-c", conf, "-o", wav, "-a", "500", "--coins", "5"},
	} {
		var err = genMain(t.Context(), "coinsig-gen", args, &stderr)
		assert.Equal(t, KindConfiguration, KindOf(err), "%v", args)
	}

	var err = genMain(t.Context(), "coinsig-gen", []string{"-c", conf, "--line", "-d", "collect", "-s", "eis"}, &stderr)
	assert.ErrorContains(t, err, "no audio output")

	require.NoError(t, genMain(t.Context(), "coinsig-gen", []string{"-c", conf, "-o", wav, "--coins", "5"}, &stderr))

	for _, args := range [][]string{
		{"-c", conf},
		{"-c", conf, "--wait", wav},
		{"-c", conf, "--amount", "nothing", wav},
		{"-c", conf, "--timeout", "-5", wav},
		{"-c", conf, "-L", "a.csv", "-l", "dir", wav},
	} {
		var err = decodeMain(t.Context(), "coinsig-decode", args, &stdout, &stderr)
		assert.Equal(t, KindConfiguration, KindOf(err), "%v", args)
	}
}

func Test_version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, decodeMain(t.Context(), "coinsig-decode", []string{"--version"}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), "coinsig-decode devel (revision "), stdout.String())

	stderr.Reset()
	require.NoError(t, genMain(t.Context(), "coinsig-gen", []string{"-v"}, &stderr))
	assert.Contains(t, stderr.String(), "coinsig-gen devel")
}
