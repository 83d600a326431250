package chunker

import (
	"strings"
	"unicode/utf8"
)

const wordSeparator = " "

// Split breaks text into chunks of at most maxChars characters without splitting
// words. Newlines are treated as spaces and runs of whitespace collapse. A single
// word longer than maxChars becomes its own oversized chunk. A non-positive
// maxChars disables the bound and yields one chunk.
func Split(text string, maxChars int) []string {
	words := Words(text)
	if len(words) == 0 {
		return nil
	}

	if maxChars <= 0 {
		return []string{strings.Join(words, wordSeparator)}
	}

	var (
		chunks  []string
		current strings.Builder
		length  int
	)

	for _, word := range words {
		wordLength := utf8.RuneCountInString(word)

		if length > 0 && length+len(wordSeparator)+wordLength > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
			length = 0
		}

		if length > 0 {
			current.WriteString(wordSeparator)
			length += len(wordSeparator)
		}
		current.WriteString(word)
		length += wordLength
	}

	if length > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// Words returns the whitespace-normalized word sequence Split operates on.
func Words(text string) []string {
	return strings.Fields(strings.ReplaceAll(text, "\n", wordSeparator))
}

// Join reassembles chunks into the normalized text they were split from.
func Join(chunks []string) string {
	return strings.Join(chunks, wordSeparator)
}
