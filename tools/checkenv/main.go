// checkenv verifies that the environment carries everything the bot needs
// before a deploy. Exits nonzero listing what is missing.
package main

import (
	"fmt"
	"os"
)

// required matches what Config.Validate refuses to start without.
var required = []string{
	"BOT_TOKEN",
	"APP_ID",
}

// recommended covers features that silently degrade when unset. GUILD_ID is
// here, not above: empty means commands register globally.
var recommended = []string{
	"GUILD_ID",
	"PROXY_API_BASE_URL",
	"PROXY_BEARER_TOKEN",
	"NITTER_BASE_URLS",
	"PREVIEW_BASE_URL",
}

func missingRequired(getenv func(string) string) []string {
	missing := []string{}
	for _, key := range required {
		if getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func unsetRecommended(getenv func(string) string) []string {
	unset := []string{}
	for _, key := range recommended {
		if getenv(key) == "" {
			unset = append(unset, key)
		}
	}
	return unset
}

func main() {
	for _, key := range unsetRecommended(os.Getenv) {
		fmt.Printf("note: %s is not set, the matching source or feature is disabled\n", key)
	}

	missing := missingRequired(os.Getenv)
	if len(missing) > 0 {
		fmt.Println("missing required environment variables:")
		for _, key := range missing {
			fmt.Println("  -", key)
		}
		os.Exit(1)
	}
	fmt.Println("environment OK")
}
