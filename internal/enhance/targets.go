package enhance

import (
	"github.com/LazyMisha/prmptlaba/internal/provider"
)

// Target is a destination the enhanced prompt is written for.
type Target struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	instruction string
}

// GeneralTarget is used for IDs that are not in the catalog.
const GeneralTarget = "general"

const sharedRules = ` Keep the user's intent, language and any concrete details they gave.
Return only the improved prompt text, with no preamble, explanation, quotes or markdown headings.`

var catalog = []Target{
	{
		ID:          GeneralTarget,
		Name:        "General",
		Description: "Any assistant or tool",
		instruction: `You rewrite prompts so they are clear, specific and unambiguous.
Add missing context, state the desired output format, and remove filler.` + sharedRules,
	},
	{
		ID:          "chatgpt",
		Name:        "ChatGPT",
		Description: "OpenAI chat models",
		instruction: `You rewrite prompts for ChatGPT. Give the model a role, the task, relevant
context, constraints and the expected response format. Prefer short numbered steps
for multi-part requests.` + sharedRules,
	},
	{
		ID:          "claude",
		Name:        "Claude",
		Description: "Anthropic chat models",
		instruction: `You rewrite prompts for Claude. Structure longer inputs with simple XML-style
tags such as <context> and <task>, state success criteria explicitly, and ask for
step-by-step reasoning when the task needs it.` + sharedRules,
	},
	{
		ID:          "image-generator",
		Name:        "Image generator",
		Description: "Midjourney, DALL-E, Stable Diffusion",
		instruction: `You rewrite prompts for text-to-image models. Describe the subject, setting,
composition, lighting, color palette, style or medium, camera or lens when relevant,
and mood, as one comma-separated descriptive paragraph.` + sharedRules,
	},
	{
		ID:          "video-generator",
		Name:        "Video generator",
		Description: "Sora, Runway, Pika",
		instruction: `You rewrite prompts for text-to-video models. Describe the scene, subject
motion, camera movement, shot length, pacing, lighting and visual style in the
order they happen.` + sharedRules,
	},
	{
		ID:          "code-assistant",
		Name:        "Code assistant",
		Description: "Copilot, Cursor and other coding tools",
		instruction: `You rewrite prompts for coding assistants. Name the language, framework and
versions, describe inputs, outputs and edge cases, mention constraints such as
performance or style, and say whether tests or explanations are wanted.` + sharedRules,
	},
	{
		ID:          "writing-assistant",
		Name:        "Writing assistant",
		Description: "Copywriting and long-form text",
		instruction: `You rewrite prompts for writing assistants. Specify audience, tone, length,
structure and the key points to cover, plus anything to avoid.` + sharedRules,
	},
	{
		ID:          "music-generator",
		Name:        "Music generator",
		Description: "Suno, Udio and similar",
		instruction: `You rewrite prompts for music generation models. Describe genre, mood, tempo,
instrumentation, vocal style, song structure and reference eras.` + sharedRules,
	},
}

// Targets returns the catalog in display order.
func Targets() []Target {
	out := make([]Target, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a target by ID.
func Lookup(id string) (Target, bool) {
	for _, t := range catalog {
		if t.ID == id {
			return t, true
		}
	}
	return Target{}, false
}

// Instruction returns the system instruction for id, falling back to the
// general one for unknown targets.
func Instruction(id string) string {
	if t, ok := Lookup(id); ok {
		return t.instruction
	}
	return catalog[0].instruction
}

// BuildRequest assembles the chat request for one enhancement.
func BuildRequest(target, prompt, model string, maxTokens int, temperature float64) provider.ChatRequest {
	return provider.ChatRequest{
		Model: model,
		Messages: []provider.Message{
			{Role: "system", Content: Instruction(target)},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}
