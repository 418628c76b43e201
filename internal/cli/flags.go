package cli

// Flags holds all command-line flag values.
type Flags struct {
	CfgFile string

	// Once runs a single capture for the named workflow from the current
	// clipboard and exits, instead of listening for hotkeys. Useful where
	// global hotkey registration is unavailable.
	Once string

	// BatchFile captures a vocabulary card for every word in the file.
	BatchFile string

	// ListDecks prints the decks and note models of the running collection.
	ListDecks bool
}

// NewFlags creates a new Flags instance with default values.
func NewFlags() *Flags {
	return &Flags{}
}
