package chain

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// CardVersion is the agent card schema version.
const CardVersion = "0.1.0"

// registrySeed prefixes every registry address derivation.
var registrySeed = []byte("web-agent")

// RegistryProgramID is the program the registry address is derived
// against. No registry program is deployed yet, so the system program
// stands in.
var RegistryProgramID = solana.SystemProgramID

// AgentCard is the public description of an agent.
type AgentCard struct {
	Name         string    `json:"name"`
	Wallet       string    `json:"wallet"`
	Version      string    `json:"version"`
	Capabilities []string  `json:"capabilities"`
	Creator      string    `json:"creator"`
	RegisteredAt time.Time `json:"registeredAt"`
	// Address is the derived registry account for Wallet.
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

// RegistryAddress derives the program address that would hold wallet's card.
func RegistryAddress(wallet string) (solana.PublicKey, uint8, error) {
	pk, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w %q: %v", ErrInvalidAddress, wallet, err)
	}
	return solana.FindProgramAddress([][]byte{registrySeed, pk.Bytes()}, RegistryProgramID)
}

// NewAgentCard builds the card for an agent.
func NewAgentCard(name, wallet, creator string, capabilities []string, at time.Time) (AgentCard, error) {
	addr, bump, err := RegistryAddress(wallet)
	if err != nil {
		return AgentCard{}, err
	}
	return AgentCard{
		Name:         name,
		Wallet:       wallet,
		Version:      CardVersion,
		Capabilities: capabilities,
		Creator:      creator,
		RegisteredAt: at.UTC(),
		Address:      addr.String(),
		Bump:         bump,
	}, nil
}
