package catalog

// Species describes one mintable collectible template. SourceID keys the
// species; every asset minted from it carries the same descriptive fields.
type Species struct {
	SourceID    uint64   `json:"sourceId"`
	Name        string   `json:"name"`
	RarityTier  string   `json:"rarityTier"`
	Types       []string `json:"types"`
	Description string   `json:"description,omitempty"`
	ShinyOdds   uint32   `json:"shinyOdds"`
}
