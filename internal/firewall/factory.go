package firewall

import "fmt"

// Backend kinds selectable in configuration.
const (
	BackendNetlink = "netlink"
	BackendNft     = "nft"
)

// NewBackend builds the backend named by kind.
func NewBackend(kind, nftPath string, spec ChainSpec) (Backend, error) {
	switch kind {
	case BackendNetlink, "":
		b, err := NewNativeBackend(spec)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendNft:
		b, err := NewScriptBackend(DefaultCommandRunner, nftPath, spec)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}
