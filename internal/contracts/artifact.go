package contracts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact names, which are also the bytecode file stems under the artifacts dir.
const (
	ArtifactTokenIndex = "TokenIndex"
	ArtifactLimiter    = "Limiter"
	ArtifactSwapPool   = "SwapPool"
	ArtifactQuoter     = "PriceIndexQuoter"
)

// Artifact is a deployable contract: its ABI and creation bytecode.
type Artifact struct {
	Name     string
	ABI      *abi.ABI
	Bytecode []byte
}

// Artifacts are the four contracts that make up one swap pool.
type Artifacts struct {
	TokenIndex Artifact
	Limiter    Artifact
	SwapPool   Artifact
	Quoter     Artifact
}

// LoadArtifacts reads <name>.bin hex bytecode files from dir.
func LoadArtifacts(dir string) (Artifacts, error) {
	set, err := ABIs()
	if err != nil {
		return Artifacts{}, fmt.Errorf("parse abis: %w", err)
	}
	if dir == "" {
		return Artifacts{}, fmt.Errorf("artifacts dir is required")
	}

	load := func(name string, parsed *abi.ABI) (Artifact, error) {
		path := filepath.Join(dir, name+".bin")
		data, err := os.ReadFile(path)
		if err != nil {
			return Artifact{}, fmt.Errorf("read %s bytecode: %w", name, err)
		}
		code, err := decodeBytecode(string(data))
		if err != nil {
			return Artifact{}, fmt.Errorf("decode %s bytecode: %w", name, err)
		}
		return Artifact{Name: name, ABI: parsed, Bytecode: code}, nil
	}

	var out Artifacts
	if out.TokenIndex, err = load(ArtifactTokenIndex, set.TokenIndex); err != nil {
		return Artifacts{}, err
	}
	if out.Limiter, err = load(ArtifactLimiter, set.Limiter); err != nil {
		return Artifacts{}, err
	}
	if out.SwapPool, err = load(ArtifactSwapPool, set.SwapPool); err != nil {
		return Artifacts{}, err
	}
	if out.Quoter, err = load(ArtifactQuoter, set.Quoter); err != nil {
		return Artifacts{}, err
	}
	return out, nil
}

func decodeBytecode(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "0x") {
		input = "0x" + input
	}
	code, err := hexutil.Decode(input)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("empty bytecode")
	}
	return code, nil
}
