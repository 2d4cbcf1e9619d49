package server

import (
	"log/slog"
	"path"

	"github.com/euforicio/devserver/internal/autorefresh"
	"github.com/euforicio/devserver/internal/renderer"
)

// RefreshOnChange returns a watch callback that drops cached markdown previews for the
// changed files and tells connected browsers to reload. root is the handler's slash-form
// root; markdown may be nil.
func RefreshOnChange(root string, notifier *autorefresh.Notifier, markdown *renderer.Service, logger *slog.Logger) func([]string) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(paths []string) {
		if markdown != nil {
			for _, rel := range paths {
				markdown.Invalidate(path.Join(root, rel))
			}
		}
		logger.Info("files changed", slog.Int("count", len(paths)))
		if notifier != nil {
			notifier.SendClientRefresh()
		}
	}
}
