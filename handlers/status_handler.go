package handlers

import (
	"net/http"

	"github.com/upb/imagegen-gateway/utils"
)

// Version is reported by the status endpoint
const Version = "0.1.0"

// StatusHandler returns application status information
func StatusHandler(environment string, providers func() []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := []string{}
		if providers != nil {
			names = append(names, providers()...)
		}

		_ = utils.WriteOK(w, map[string]interface{}{
			"version":     Version,
			"environment": environment,
			"providers":   names,
		})
	}
}
