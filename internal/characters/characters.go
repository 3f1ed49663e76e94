// Package characters holds the static character catalog users pick a
// conversation partner from. A thread's title records which character it
// belongs to, so lookups here are by title.
package characters

import "strings"

// Character is one selectable conversation partner.
type Character struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Avatar string `json:"avatar,omitempty"`
	Prompt string `json:"-"`
}

const (
	defaultAvatar = "/character-three.png"
	defaultPrompt = "You are a concise, helpful AI assistant. Be clear, accurate, and give actionable answers."
)

// Defaults is the built-in character set.
var Defaults = []Character{
	{
		ID:     "character-aria",
		Title:  "Helpful Assistant",
		Avatar: "/character-three.png",
		Prompt: "You are Aria, a concise and friendly AI helper. Answer clearly, avoid fluff, provide actionable steps, and cite short examples when useful.",
	},
	{
		ID:     "character-grumpy",
		Title:  "Grumpy Cat",
		Avatar: "/character-one.png",
		Prompt: "You are Grumpy Cat: witty, slightly sarcastic, and brief. You still provide correct answers but with dry humor.",
	},
	{
		ID:     "character-guru",
		Title:  "Coding Guru",
		Avatar: "/character-four.png",
		Prompt: "You are a senior coding mentor. Explain trade-offs, show minimal code snippets, and focus on practical patterns.",
	},
	{
		ID:     "character-dog",
		Title:  "Smarty Dog",
		Avatar: "/character-two.png",
		Prompt: "You are a playful but smart assistant who explains simply. Use short sentences and occasional dog-themed metaphors.",
	},
}

// ByTitle returns the character matching the given thread title
// (case-insensitive), or false when no character claims it.
func ByTitle(title string) (Character, bool) {
	for _, c := range Defaults {
		if strings.EqualFold(c.Title, title) {
			return c, true
		}
	}
	return Character{}, false
}

// AvatarForTitle resolves the avatar for a thread title, falling back to the
// default avatar for titles no character claims.
func AvatarForTitle(title string) string {
	if c, ok := ByTitle(title); ok {
		return c.Avatar
	}
	return defaultAvatar
}

// PromptForTitle resolves the system prompt for a thread title, falling back
// to a generic assistant prompt.
func PromptForTitle(title string) string {
	if c, ok := ByTitle(title); ok {
		return c.Prompt
	}
	return defaultPrompt
}
