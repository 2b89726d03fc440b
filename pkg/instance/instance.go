package instance

import "github.com/evdms/dealer-backend/pkg/env"

// GetID identifies the running process in logs, preferring the platform dyno name.
func GetID(kind string) string {
	if id := env.Get("DYNO", ""); id != "" {
		return id
	}
	if kind == "" {
		kind = "evdms"
	}
	return env.Get("EVDMS_INSTANCE_ID", kind+"-0")
}
