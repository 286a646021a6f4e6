package llm

import (
	"fmt"
	"strings"
)

// Global system prompt template. Task configuration may override per task;
// otherwise {task_instruction} is substituted from the table below.
const systemPromptTemplate = `You write social media posts for an automated posting pipeline.
{task_instruction}
Respond with ONLY a JSON object of the form:
{"variants":[{"body":"...","label":"short style label","char_count":123}]}
Produce up to 3 variants. Escape newlines inside strings. No markdown fences, no commentary.`

var taskInstructions = map[Task]string{
	TaskPost:  "Draft original posts on the given theme.",
	TaskReply: "Draft replies to the given post. Stay on topic and add something useful.",
	TaskQuote: "Draft quote comments for the given post. Give a distinct take, not a summary.",
}

func systemPromptFor(task Task, taskCfg TaskConfig) string {
	if taskCfg.SystemPrompt != "" {
		return taskCfg.SystemPrompt
	}
	instruction := taskInstructions[task]
	if instruction == "" {
		instruction = taskInstructions[TaskPost]
	}
	return strings.ReplaceAll(systemPromptTemplate, "{task_instruction}", instruction)
}

func userPromptFor(req Request) string {
	var b strings.Builder

	switch req.Task {
	case TaskReply:
		fmt.Fprintf(&b, "Write a reply to this post:\n%s\n", req.Theme)
	case TaskQuote:
		fmt.Fprintf(&b, "Write a quote comment for this post:\n%s\n", req.Theme)
	default:
		fmt.Fprintf(&b, "Theme: %s\n", req.Theme)
	}

	if req.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Tone)
	}
	if req.Audience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", req.Audience)
	}
	if req.Note != "" {
		fmt.Fprintf(&b, "Additional notes: %s\n", req.Note)
	}
	if req.MaxLength > 0 {
		fmt.Fprintf(&b, "Keep each variant under %d characters.\n", req.MaxLength)
	}

	return b.String()
}
