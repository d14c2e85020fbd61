package subject

import "strings"

func prompt(lines ...string) string {
	return strings.Join(lines, "\n")
}

var builtin = []Profile{
	{
		Key:         "math",
		Name:        "Mathematics",
		Description: "Algebra, Calculus, Geometry, and more",
		Icon:        "📐",
		Format:      FormatPlain,
		Prompt: prompt(
			"You are a math tutor. Explain concepts clearly and show step-by-step solutions.",
			"Use mathematical notation when appropriate. Break down complex problems into simpler steps.",
		),
	},
	{
		Key:         "science",
		Name:        "Science",
		Description: "Physics, Chemistry, Biology",
		Icon:        "🔬",
		Format:      FormatRich,
		Prompt: prompt(
			"You are a science tutor. Explain scientific concepts with real-world examples.",
			"Use appropriate terminology and explain the underlying principles. Format your responses with:",
			"- Clear headings",
			"- Bullet points for key concepts",
			"- Numbered steps for processes",
			"- Examples in separate blocks",
			"- Important terms in bold",
			"- Visual descriptions where helpful",
		),
	},
	{
		Key:         "history",
		Name:        "History",
		Description: "World History, US History, Ancient Civilizations",
		Icon:        "📜",
		Format:      FormatPlain,
		Prompt: prompt(
			"You are a history tutor. Provide historical context and explain the significance of events.",
			"Connect past events to present-day situations when relevant.",
		),
	},
	{
		Key:         "english",
		Name:        "English",
		Description: "Literature, Writing, Grammar",
		Icon:        "📚",
		Format:      FormatPlain,
		Prompt: prompt(
			"You are an English tutor. Help with literature analysis, writing, and grammar.",
			"Provide constructive feedback and explain literary concepts.",
		),
	},
	{
		Key:         "programming",
		Name:        "Programming",
		Description: "Coding, Algorithms, Computer Science",
		Icon:        "💻",
		Format:      FormatPlain,
		Prompt: prompt(
			"You are a programming tutor. Explain coding concepts clearly and provide practical examples.",
			"Use proper code formatting and explain best practices.",
		),
	},
}

// Builtin returns the catalog of the five stock subjects. Only science
// replies are formatted on the server.
func Builtin() *Catalog {
	c, err := NewCatalog(builtin...)
	if err != nil {
		panic("subject: invalid builtin catalog: " + err.Error())
	}
	return c
}
