// cmd/kagerou/constants.go
package main

// VERSION is the current bot version
const VERSION = "1.2.0"

const (
	// embedColor is the accent color used for relayed post embeds.
	embedColor = 0x1DA1F2

	// maxEmbedText bounds the description text placed in an embed.
	maxEmbedText = 2048
)
