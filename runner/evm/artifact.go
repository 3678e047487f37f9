package evm

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

// Artifact is a compiled contract: its name, ABI and creation bytecode.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

type artifactJSON struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads a compiler artifact from path.
func LoadArtifact(path string) (*Artifact, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return nil, xerrors.Errorf("expanding artifact path: %w", err)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, xerrors.Errorf("opening artifact: %w", err)
	}
	defer f.Close() //nolint:errcheck

	a, err := ReadArtifact(f)
	if err != nil {
		return nil, xerrors.Errorf("artifact %s: %w", path, err)
	}
	return a, nil
}

// ReadArtifact decodes a JSON artifact of the form
//
//	{"contractName": "...", "abi": [...], "bytecode": "0x..."}
func ReadArtifact(r io.Reader) (*Artifact, error) {
	var raw artifactJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, xerrors.Errorf("decoding artifact: %w", err)
	}
	if raw.ContractName == "" {
		return nil, xerrors.New("artifact has no contractName")
	}
	if len(raw.ABI) == 0 {
		return nil, xerrors.Errorf("contract %s: artifact has no abi", raw.ContractName)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, xerrors.Errorf("contract %s: parsing abi: %w", raw.ContractName, err)
	}

	code, err := hexutil.Decode("0x" + strings.TrimPrefix(strings.TrimSpace(raw.Bytecode), "0x"))
	if err != nil {
		return nil, xerrors.Errorf("contract %s: decoding bytecode: %w", raw.ContractName, err)
	}
	if len(code) == 0 {
		return nil, xerrors.Errorf("contract %s: empty bytecode", raw.ContractName)
	}

	return &Artifact{Name: raw.ContractName, ABI: parsed, Bytecode: code}, nil
}
