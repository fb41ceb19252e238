package ledger

import "roundtable/pkg/store"

// ToggleFavorite flips the favorite/bookmark edge for (actor, target):
// create if absent, delete if present. Returns the new boolean state.
// No counters are kept for favorites.
func ToggleFavorite(actorID, targetID string) (bool, error) {
	on, err := store.HasFavorite(actorID, targetID)
	if err != nil {
		return false, err
	}
	return store.SetFavorite(actorID, targetID, !on)
}
