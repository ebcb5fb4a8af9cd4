package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/talkback/internal/voices"
)

// MaxInputLength is the number of characters the message box accepts, a 50x6 text area.
const MaxInputLength = 300

type homePageData struct {
	Groups         []voices.Group
	MaxInputLength int
	HistoryLimit   int
}

// defaultHistoryLimit is the number of turns the browser keeps before dropping the oldest.
const defaultHistoryLimit = 50

// HandleHome renders the chat page. The page itself is stateless: history and thread state live in the
// browser for the lifetime of the tab.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	data := homePageData{
		Groups:         m.catalog.Groups(),
		MaxInputLength: MaxInputLength,
		HistoryLimit:   defaultHistoryLimit,
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
