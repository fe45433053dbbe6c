package analyze

import (
	"regexp"
	"strings"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoder is the tiktoken encoding used for chunk sizing.
const DefaultEncoder = "cl100k_base"

type chunk struct {
	id         string
	documentID string
	index      int
	text       string
}

// transformIntoChunks splits text into token-bounded chunks on sentence
// boundaries. When overlapTokens > 0, each chunk restarts with the
// trailing sentences of its predecessor up to that token budget, so
// entities mentioned across a boundary appear in both chunks.
func transformIntoChunks(
	text string,
	documentID string,
	encoder string,
	maxTokens int,
	overlapTokens int,
) ([]chunk, error) {
	enc, err := tiktoken.GetEncoding(encoder)
	if err != nil {
		return nil, err
	}

	sentences := splitIntoSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	tokenCounts := make([]int, len(sentences))
	for i, s := range sentences {
		tokenCounts[i] = len(enc.Encode(s, nil, nil))
	}

	var chunks []chunk
	start := 0

	flush := func(end int) error {
		if end <= start {
			return nil
		}
		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		chunks = append(chunks, chunk{
			id:         id,
			documentID: documentID,
			index:      len(chunks),
			text:       strings.TrimSpace(strings.Join(sentences[start:end], " ")),
		})
		return nil
	}

	current := 0
	for i := range sentences {
		if i > start && current+tokenCounts[i] > maxTokens {
			if err := flush(i); err != nil {
				return nil, err
			}
			// back up into the finished chunk until the overlap budget is spent
			newStart := i
			overlap := 0
			for newStart > start && overlap+tokenCounts[newStart-1] <= overlapTokens {
				overlap += tokenCounts[newStart-1]
				newStart--
			}
			start = newStart
			current = overlap
		}
		current += tokenCounts[i]
	}

	if err := flush(len(sentences)); err != nil {
		return nil, err
	}

	return chunks, nil
}

var tableDelimRe = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

// splitIntoSentences breaks text into sentence strings. Markdown tables
// are kept together as a single sentence so a token budget never cuts a
// table in half.
func splitIntoSentences(text string) []string {
	lines := strings.Split(text, "\n")
	var sentences []string
	var current strings.Builder

	isTableRow := func(line string) bool {
		trimmed := strings.TrimSpace(line)
		return trimmed != "" && strings.Contains(trimmed, "|")
	}

	flushCurrent := func() {
		if current.Len() > 0 {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	appendLineSentences := func(trimmed string) {
		for _, sentence := range splitLineIntoSentences(trimmed) {
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(sentence)

			if strings.HasSuffix(sentence, ".") ||
				strings.HasSuffix(sentence, "!") ||
				strings.HasSuffix(sentence, "?") {
				flushCurrent()
			}
		}
	}

	inTable := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inTable && isTableRow(line) && i+1 < len(lines) && tableDelimRe.MatchString(strings.TrimSpace(lines[i+1])) {
			flushCurrent()
			inTable = true
			current.WriteString(line)
			continue
		}

		if !inTable && isTableRow(line) {
			flushCurrent()
			sentences = append(sentences, trimmed)
			continue
		}

		if inTable {
			if trimmed == "" || !isTableRow(line) {
				inTable = false
				flushCurrent()
				if trimmed != "" {
					appendLineSentences(trimmed)
				}
			} else {
				current.WriteString("\n")
				current.WriteString(line)
			}
			continue
		}

		if trimmed == "" {
			flushCurrent()
		} else {
			appendLineSentences(trimmed)
		}
	}

	flushCurrent()

	var result []string
	for _, sentence := range sentences {
		if strings.TrimSpace(sentence) != "" {
			result = append(result, sentence)
		}
	}

	return result
}

func splitLineIntoSentences(line string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])

		if line[i] == '.' || line[i] == '!' || line[i] == '?' {
			// "1. item" style listings are not sentence ends
			if i > 0 && unicode.IsDigit(rune(line[i-1])) && i+1 < len(line) && line[i+1] == ' ' {
				continue
			}

			j := i + 1
			for j < len(line) && (line[j] == '.' || line[j] == '!' || line[j] == '?') {
				current.WriteByte(line[j])
				j++
			}
			for j < len(line) && (line[j] == '"' || line[j] == '\'' || line[j] == ')' ||
				line[j] == ']' || line[j] == '}') {
				current.WriteByte(line[j])
				j++
			}

			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
			i = j - 1
		}
	}

	remaining := strings.TrimSpace(current.String())
	if remaining != "" {
		sentences = append(sentences, remaining)
	}

	return sentences
}
