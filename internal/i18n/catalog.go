package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// German strings for API errors and CLI output. English is the key itself.
var german = map[string]string{
	"unknown router %s":                     "unbekannter Router %s",
	"deployment %s not found":               "Deployment %s nicht gefunden",
	"invalid state %q":                      "ungültiger Zustand %q",
	"invalid limit %q":                      "ungültiges Limit %q",
	"invalid request body: %v":              "ungültiger Request-Body: %v",
	"deployment rate limit exceeded":        "Deployment-Ratenlimit überschritten",
	"too many failed attempts":              "zu viele fehlgeschlagene Versuche",
	"authentication required":               "Authentifizierung erforderlich",
	"drift detection is not configured":     "Drift-Erkennung ist nicht konfiguriert",
	"scheduler is not running":              "Scheduler läuft nicht",
	"failed to list deployments":            "Deployments konnten nicht gelistet werden",
	"failed to load deployment":             "Deployment konnte nicht geladen werden",
	"failed to save deployment":             "Deployment konnte nicht gespeichert werden",
	"failed to prepare deployment":          "Deployment konnte nicht vorbereitet werden",
	"Configuration is valid (%d routers)\n": "Konfiguration ist gültig (%d Router)\n",
	"No changes for %s":                     "Keine Änderungen für %s",
	"%d change(s) for %s":                   "%d Änderung(en) für %s",
	"Deployment %s finished: %s\n":          "Deployment %s beendet: %s\n",
	"Deployment aborted\n":                  "Deployment abgebrochen\n",
	"Apply %d change(s) to %d router(s)?":   "%d Änderung(en) auf %d Router anwenden?",
	"No deployments recorded\n":             "Keine Deployments aufgezeichnet\n",
}

func init() {
	for key, msg := range german {
		if err := message.SetString(language.German, key, msg); err != nil {
			panic(err)
		}
	}
}
