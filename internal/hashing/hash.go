package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/mmrzaf/testboot/internal/domain"
)

type bootstrapConfigPayload struct {
	MarkerName    string   `json:"marker_name"`
	BuildArgv     []string `json:"build_argv"`
	TestArgv      []string `json:"test_argv"`
	DiscoveryRoot string   `json:"discovery_root,omitempty"`
	Policy        string   `json:"policy"`
}

// HashBootstrapConfig fingerprints everything that decides what a bootstrap
// session does, so history entries can be grouped by configuration.
func HashBootstrapConfig(markerName string, build domain.Command, testArgv []string, discoveryRoot string, policy domain.BuildFailurePolicy) (string, error) {
	p := bootstrapConfigPayload{
		MarkerName:    markerName,
		BuildArgv:     build.Argv(),
		TestArgv:      append([]string{}, testArgv...),
		DiscoveryRoot: discoveryRoot,
		Policy:        string(policy),
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
