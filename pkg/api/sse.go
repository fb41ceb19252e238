package api

import (
	"fmt"
	"net/http"

	"roundtable/pkg/models"
)

// writeEvent emits one SSE record: event name line, JSON data line, blank
// separator. The payload is flushed immediately so clients see turns as
// they happen.
func writeEvent(w http.ResponseWriter, fl http.Flusher, ev models.TurnEvent) {
	fmt.Fprintf(w, "event:%s\ndata:%s\n\n", ev.Name, ev.Data())
	fl.Flush()
}
