package identity

import "fmt"

// MarshalText implements encoding.TextMarshaler, letting NodeType appear as
// a bare string in TOML/JSON configuration (spec.md §6, "node_type ∈
// {Bootnode, Client, Storer}").
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NodeType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "bootnode":
		*t = Bootnode
	case "client":
		*t = Client
	case "storer":
		*t = Storer
	default:
		return fmt.Errorf("identity: unknown node type %q", text)
	}
	return nil
}
