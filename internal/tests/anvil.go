package tests

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/Layr-Labs/chain-indexer/pkg/clients/ethereum"
)

type AnvilConfig struct {
	PortNumber string `json:"portNumber"`
	ChainId    string `json:"chainId"`
	BlockTime  string `json:"blockTime"`
}

func (c *AnvilConfig) RpcUrl() string {
	return fmt.Sprintf("http://localhost:%s", c.PortNumber)
}

// AnvilAvailable reports whether an anvil binary is on the PATH
func AnvilAvailable() bool {
	_, err := exec.LookPath("anvil")
	return err == nil
}

// StartAnvil launches a fresh local anvil node. The default dev accounts are pre-funded.
func StartAnvil(ctx context.Context, cfg *AnvilConfig) (*exec.Cmd, error) {
	args := []string{
		"--chain-id", cfg.ChainId,
		"--port", cfg.PortNumber,
	}
	if cfg.BlockTime != "" {
		args = append(args, "--block-time", cfg.BlockTime)
	}
	cmd := exec.CommandContext(ctx, "anvil", args...)
	cmd.Stderr = os.Stderr

	if os.Getenv("JOIN_ANVIL_OUTPUT") == "true" {
		cmd.Stdout = os.Stdout
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start anvil: %w", err)
	}
	return cmd, nil
}

// WaitForAnvil polls the node until it serves the latest block or ctx expires
func WaitForAnvil(ctx context.Context, t *testing.T, ethereumClient ethereum.Client) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("anvil did not come up: %w", ctx.Err())
		case <-time.After(500 * time.Millisecond):
			block, err := ethereumClient.GetLatestBlock(ctx)
			if err != nil {
				t.Logf("Failed to get latest block, will retry: %v", err)
				continue
			}
			t.Logf("Anvil is up and running, latest block: %v", block)
			return nil
		}
	}
}

func KillAnvil(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("anvil command is not running")
	}

	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill anvil process: %w", err)
	}
	_ = cmd.Wait()
	return nil
}
