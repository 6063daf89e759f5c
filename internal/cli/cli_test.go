package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command against an isolated home directory.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("LINEBOT_HOME", home)
	t.Setenv("LINEBOT_BACKEND_PROVIDER", "mock")
	t.Setenv("LINEBOT_STORE_DRIVER", "file")
	return home
}

func TestVersionCmd(t *testing.T) {
	isolate(t)
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "linebot dev")
}

func TestChatCmd_UnregisteredThenRegistered(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "chat", "--user", "U1", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "請先註冊")

	out, err = run(t, "", "chat", "--user", "U1", "/register", "sk-test1234567")
	require.NoError(t, err)
	assert.Contains(t, out, "註冊成功")

	// A new process reloads the stored credential.
	out, err = run(t, "", "chat", "--user", "U1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello\n", out)
}

func TestChatCmd_Stdin(t *testing.T) {
	isolate(t)

	out, err := run(t, "/register sk-abcdefgh1234\n\nfirst\n/clear\n", "chat", "--user", "U2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "註冊成功")
	assert.Equal(t, "echo: first", lines[1])
	assert.Contains(t, lines[2], "清除成功")
}

func TestUsersCmd(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "no registered users")

	_, err = run(t, "", "chat", "--user", "U3", "/register", "sk-test1234567")
	require.NoError(t, err)

	out, err = run(t, "", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "U3")
	assert.Contains(t, out, "4567")
	assert.NotContains(t, out, "test123")
}

func TestConfigValidateCmd(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "config OK")

	t.Setenv("LINEBOT_STORE_DRIVER", "mongo")
	out, err = run(t, "", "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "store.driver")
}

func TestConfigSetGetUnset(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "config", "set", "session.exchanges", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "updated session.exchanges")

	out, err = run(t, "", "config", "get", "session.exchanges")
	require.NoError(t, err)
	assert.Equal(t, "4\n", out)

	_, err = run(t, "", "config", "unset", "session.exchanges")
	require.NoError(t, err)

	_, err = run(t, "", "config", "get", "session.exchanges")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, "", "config", "unset", "session.exchanges")
	assert.ErrorContains(t, err, "not found")
}

func TestConfigSet_SchemaKeys(t *testing.T) {
	home := isolate(t)

	_, err := run(t, "", "config", "set", "session.exchange", "4")
	require.ErrorContains(t, err, `unknown config key "session.exchange"`)
	_, statErr := os.Stat(filepath.Join(home, "config.yaml"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = run(t, "", "config", "set", "session.systemmessage", "be brief")
	require.NoError(t, err)
	_, err = run(t, "", "config", "set", "gateway.allowedOrigins.0", "https://a.example.com")
	require.NoError(t, err)
	_, err = run(t, "", "config", "set", "gateway.allowedOrigins.1", "https://b.example.com")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(home, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "systemMessage: be brief")
	assert.NotContains(t, string(data), "systemmessage")

	_, err = run(t, "", "config", "unset", "gateway.allowedOrigins.0")
	require.NoError(t, err)
	out, err := run(t, "", "config", "get", "gateway.allowedOrigins")
	require.NoError(t, err)
	assert.Equal(t, "- https://b.example.com\n", out)
}

func TestConfigSet_RejectsInvalid(t *testing.T) {
	home := isolate(t)

	out, err := run(t, "", "config", "set", "gateway.port", "70000")
	require.ErrorContains(t, err, "not saved")
	assert.Contains(t, out, "gateway.port")

	_, statErr := os.Stat(filepath.Join(home, "config.yaml"))
	assert.True(t, os.IsNotExist(statErr), "rejected edit must not create the file")
}

func TestConfigGet_MasksSecrets(t *testing.T) {
	home := isolate(t)
	yaml := "channels:\n  line:\n    channelSecret: abcdefghijklmnop\n    channelAccessToken: tok\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0o600))

	out, err := run(t, "", "config", "get", "channels.line.channelSecret")
	require.NoError(t, err)
	assert.Equal(t, "abc*********mnop\n", out)

	out, err = run(t, "", "config", "get", "--reveal", "channels.line.channelSecret")
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnop\n", out)

	out, err = run(t, "", "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "channelAccessToken: tok")
	assert.NotContains(t, out, "abcdefghijklmnop")
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"42", 42},
		{"-3", -3},
		{"0.5", 0.5},
		{"t", "t"},
		{"gpt-4o", "gpt-4o"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}
