package scenario

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

//go:embed assets/xy-nft.png
var defaultImage []byte

const defaultImageName = "xy-nft.png"

func init() {
	register(Scenario{
		Name:        "nft-download",
		Description: "mint an image, approve it, fetch it back over RPC and compare the bytes",
		Run:         runNftDownload,
	})
}

func runNftDownload(ctx context.Context, env *Env) error {
	dave := env.Accounts.Get("Dave")

	name, data, err := loadImage(env.ImagePath)
	if err != nil {
		return err
	}

	nftID, err := mintApproved(ctx, env, dave, []byte(name), data)
	if err != nil {
		return err
	}

	nft, err := env.Chain.NftData(ctx, nftID)
	if err != nil {
		return fmt.Errorf("nft data %d: %w", nftID, err)
	}
	if err := expectTrue(fmt.Sprintf("nft %d data available", nftID), nft != nil); err != nil {
		return err
	}

	out, err := writeDownload(env.OutputDir, nftID, name, nft.Data)
	if err != nil {
		return err
	}
	env.Logger.Info("nft downloaded", "nft_id", nftID, "path", out, "size", len(nft.Data))

	written, err := os.ReadFile(out)
	if err != nil {
		return fmt.Errorf("read back %s: %w", out, err)
	}
	if !bytes.Equal(data, written) {
		return &AssertionFailure{Step: "downloaded image matches upload", Expected: digest(data), Actual: digest(written)}
	}
	return nil
}

// loadImage reads path, or returns the bundled image when path is empty.
func loadImage(path string) (string, []byte, error) {
	if path == "" {
		return defaultImageName, defaultImage, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("read image: %s is empty", path)
	}
	return filepath.Base(path), data, nil
}

func writeDownload(dir string, nftID uint32, name string, data []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	out := filepath.Join(dir, fmt.Sprintf("nft-%d-%s", nftID, name))
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}

func digest(b []byte) string {
	sum := blake2b.Sum256(b)
	return fmt.Sprintf("%d bytes blake2b %x", len(b), sum[:8])
}
