package config

import (
	"time"

	domain "github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
)

// Network holds the per-network lottery parameters.
type Network struct {
	Name           string                  `yaml:"name"`
	ChainID        uint64                  `yaml:"chain_id"`
	EntryFee       uint64                  `yaml:"ticket_price"`
	Interval       time.Duration           `yaml:"interval"`
	VRFCoordinator string                  `yaml:"vrf_coordinator"`
	Randomness     domain.RandomnessParams `yaml:",inline"`
}

// TicketPrice is 0.01 ether in wei.
const TicketPrice uint64 = 10_000_000_000_000_000

const (
	localGasLane  = "0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc"
	goerliGasLane = "0x79d3d8832d904592c0bf9818b621522c988bb8b0c05cdc3b15aea1b6e8db0c15"
)

var developmentNetworks = map[string]bool{"hardhat": true, "localhost": true}

// IsDevelopmentNetwork reports whether name is a local development network.
func IsDevelopmentNetwork(name string) bool {
	return developmentNetworks[name]
}

// DefaultNetworks returns the built-in network table.
func DefaultNetworks() map[string]Network {
	local := domain.RandomnessParams{
		KeyHash:              localGasLane,
		SubscriptionID:       588,
		CallbackGasLimit:     500000,
		RequestConfirmations: 1,
		NumWords:             domain.NumbersPerGuess,
	}
	return map[string]Network{
		"hardhat": {
			Name:       "hardhat",
			ChainID:    31337,
			EntryFee:   TicketPrice,
			Interval:   30 * time.Second,
			Randomness: local,
		},
		"localhost": {
			Name:       "localhost",
			ChainID:    31337,
			EntryFee:   TicketPrice,
			Interval:   30 * time.Second,
			Randomness: local,
		},
		"goerli": {
			Name:           "goerli",
			ChainID:        5,
			EntryFee:       TicketPrice,
			Interval:       30 * time.Second,
			VRFCoordinator: "0x2Ca8E0C643bDe4C2E08ab1fA0da3401AdAD7734D",
			Randomness: domain.RandomnessParams{
				KeyHash:              goerliGasLane,
				SubscriptionID:       7203,
				CallbackGasLimit:     500000,
				RequestConfirmations: 3,
				NumWords:             domain.NumbersPerGuess,
			},
		},
	}
}
