package archive

import "strings"

const defaultChunkSize = 2000

// ChunkText splits text into chunks of at most chunkSize runes. A chunk is
// cut at the last paragraph or line break in its second half when there is
// one. Blank chunks are dropped.
func ChunkText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var chunks []string
	runes := []rune(text)

	for start := 0; start < len(runes); {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := breakPoint(runes[start:end]); cut > 0 {
			end = start + cut
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = end
	}

	return chunks
}

// breakPoint returns the offset just after the last blank line, or failing
// that the last newline, in the second half of window. It returns 0 if
// neither exists.
func breakPoint(window []rune) int {
	half := len(window) / 2
	line := 0
	for i := len(window) - 1; i >= half; i-- {
		if window[i] != '\n' {
			continue
		}
		if i > 0 && window[i-1] == '\n' {
			return i + 1
		}
		if line == 0 {
			line = i + 1
		}
	}
	return line
}
