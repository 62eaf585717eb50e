package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsCommand(t *testing.T) {
	t.Setenv("LEDGER_PUBLIC_KEYS", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266,0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	t.Setenv("LEDGER_PRIVATE_KEYS", "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80,0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"accounts", "--config-dir", t.TempDir()})
	require.NoError(t, rootCmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0\t0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", lines[0])
	assert.Equal(t, "1\t0x70997970C51812dc3A010C7d01b50e0d17dc79C8", lines[1])
}

func TestQueryRejectsBadContract(t *testing.T) {
	rootCmd.SetArgs([]string{"balance", "--config-dir", t.TempDir(), "--contract", "nope"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "合约地址无效")
}
