package utils

// Truncate shortens content to at most maxLen bytes, appending "..." when cut.
func Truncate(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}

// Truncate80 truncates content to 80 bytes, for log-line previews.
func Truncate80(content string) string {
	return Truncate(content, 80)
}
