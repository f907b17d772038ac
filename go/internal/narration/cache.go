package narration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/nkarpachev/tvquiz/go/internal/media"
)

// ClipTable maps normalized stock phrases to pre-rendered narration clips.
type ClipTable map[string]string

type clipTableFile struct {
	Clips map[string]string `yaml:"clips"`
}

// LoadClipTable reads the phrase table from a YAML asset file.
func LoadClipTable(path string) (ClipTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip table: %w", err)
	}
	var file clipTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse clip table: %w", err)
	}

	table := make(ClipTable, len(file.Clips))
	for phrase, clip := range file.Clips {
		table[normalize(phrase)] = clip
	}
	return table, nil
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// FindPrefix looks for a cached phrase the text starts with. When the text
// extends past the cached phrase, the remainder is returned for dynamic
// synthesis.
func (t ClipTable) FindPrefix(text string) (clip, remainder string, ok bool) {
	trimmed := strings.TrimSpace(text)
	for phrase, url := range t {
		if n, match := prefixLen(trimmed, phrase); match {
			return url, strings.TrimSpace(trimmed[n:]), true
		}
	}
	return "", "", false
}

// prefixLen reports the byte length of the leading part of text matching the
// lowercased phrase. Offsets are measured on text itself, so a rune whose
// lowercase form has a different byte length cannot skew the split.
func prefixLen(text, phrase string) (int, bool) {
	off := 0
	for _, pr := range phrase {
		r, size := utf8.DecodeRuneInString(text[off:])
		if r == utf8.RuneError && size <= 1 {
			return 0, false
		}
		if unicode.ToLower(r) != pr {
			return 0, false
		}
		off += size
	}
	return off, true
}

// ClipCache speaks stock phrases from pre-rendered clips, splitting a longer
// utterance into the cached prefix plus a synthesized remainder.
type ClipCache struct {
	Table     ClipTable
	Player    media.Player
	Remainder Speaker
}

// Speak plays the cached clip for text. Returns ErrNoMatch when the table
// has no matching prefix.
func (c *ClipCache) Speak(ctx context.Context, text string) error {
	clip, remainder, ok := c.Table.FindPrefix(text)
	if !ok {
		return ErrNoMatch
	}

	if err := c.Player.Play(ctx, clip, media.PlayOptions{Volume: 1.0}); err != nil {
		return fmt.Errorf("failed to play cached clip %s: %w", clip, err)
	}

	if remainder != "" && c.Remainder != nil {
		if err := c.Remainder.Speak(ctx, remainder); err != nil {
			// The stock part already played; a failed remainder downgrades
			// to a log line rather than re-narrating everything.
			log.Warn().Err(err).Str("remainder", remainder).Msg("failed to speak clip remainder")
		}
	}
	return nil
}

// Stop halts the clip playback.
func (c *ClipCache) Stop() {
	c.Player.Stop()
}
