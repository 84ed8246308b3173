// Package prompts builds the deterministic natural-language prompts sent to
// the text-generation service. Prompts embed the conversation history
// verbatim, never paraphrased, so the model reasons only over stated facts.
package prompts

import (
	"fmt"
	"strings"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/models"
)

// DiagnosisContext describes the fault under diagnosis for prompt building.
type DiagnosisContext struct {
	// Title identifies the light or symptom family, e.g. "נורית מנוע".
	Title string
	// Description is the authored knowledge-base description, if any.
	Description string
	// Severity is the authored severity tag, if any.
	Severity string
	// Candidates are the authored causes known to the knowledge base.
	Candidates []models.Cause
	// Category is the symptom category, if routed through a mapping.
	Category string
	// Answers are the recorded question/answer pairs. The conversation log
	// only carries raw option ids for enumerated answers; this carries the
	// labels the driver actually picked.
	Answers []string
}

// BuildDiagnosisSystemMessage returns the system message for diagnosis
// generation.
func BuildDiagnosisSystemMessage() string {
	return `You are an automotive diagnostic assistant. You produce a structured fault diagnosis from a driver's reported symptoms and answers. You never invent facts the driver did not state, and you respond with JSON only.`
}

// BuildDiagnosisPrompt creates the prompt for the final generative diagnosis.
// It embeds the fault identity, the vehicle, and the full question/answer
// history verbatim, and spells out the JSON response contract.
func BuildDiagnosisPrompt(dc *DiagnosisContext, history []models.Message, vehicle *models.VehicleInfo) string {
	var prompt strings.Builder

	prompt.WriteString("# Vehicle Fault Diagnosis\n\n")
	prompt.WriteString("Produce a ranked diagnosis for the fault described below.\n\n")

	prompt.WriteString("## Fault\n\n")
	if dc.Title != "" {
		prompt.WriteString(fmt.Sprintf("- **Reported fault**: %s\n", dc.Title))
	}
	if dc.Description != "" {
		prompt.WriteString(fmt.Sprintf("- **Description**: %s\n", dc.Description))
	}
	if dc.Severity != "" {
		prompt.WriteString(fmt.Sprintf("- **Authored severity**: %s\n", dc.Severity))
	}
	if dc.Category != "" {
		prompt.WriteString(fmt.Sprintf("- **Category**: %s\n", dc.Category))
	}
	prompt.WriteString("\n")

	writeVehicle(&prompt, vehicle)

	if len(dc.Candidates) > 0 {
		prompt.WriteString("## Known candidate causes\n\n")
		for _, c := range dc.Candidates {
			prompt.WriteString(fmt.Sprintf("- %s (prior %.2f)\n", c.Name, c.Probability))
		}
		prompt.WriteString("\n")
	}

	writeHistory(&prompt, history)

	if len(dc.Answers) > 0 {
		prompt.WriteString("## Collected answers\n\n")
		for _, a := range dc.Answers {
			prompt.WriteString(fmt.Sprintf("- %s\n", a))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `title`: short fault title in the driver's language\n")
	prompt.WriteString("- `confidence`: 0.0-1.0 overall confidence\n")
	prompt.WriteString("- `severity`: one of \"critical\", \"high\", \"medium\", \"low\"\n")
	prompt.WriteString("- `causes`: ranked array of {`issue`, `probability` (0.0-1.0), `explanation`}\n")
	prompt.WriteString("- `self_fix_steps`: array of steps the driver can safely do (may be empty)\n")
	prompt.WriteString("- `recommendations`: array of next-step recommendations\n")
	prompt.WriteString("- `do_not_drive`: true only if driving is unsafe\n")
	prompt.WriteString("- `tow_needed`: true only if the vehicle should be towed\n\n")
	prompt.WriteString("Base the diagnosis only on the stated answers. Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildNextQuestionPrompt creates the prompt used on the free-form path,
// where the knowledge base has no matching scenario and the model authors
// the next clarifying question itself.
func BuildNextQuestionPrompt(history []models.Message, vehicle *models.VehicleInfo) string {
	var prompt strings.Builder

	prompt.WriteString("# Vehicle Fault Intake\n\n")
	prompt.WriteString("You are collecting information about a vehicle fault. ")
	prompt.WriteString("Decide whether you have enough information for a diagnosis; if not, ask the single most informative next question.\n\n")

	writeVehicle(&prompt, vehicle)
	writeHistory(&prompt, history)

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `question`: the next question, in the driver's language (empty if none needed)\n")
	prompt.WriteString("- `options`: up to 4 {`id`, `label`} answer options (may be empty for free text)\n")
	prompt.WriteString("- `ready_for_diagnosis`: true when enough information has been collected\n\n")
	prompt.WriteString("Ask about one thing at a time. Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

func writeVehicle(prompt *strings.Builder, vehicle *models.VehicleInfo) {
	if vehicle == nil || (vehicle.Make == "" && vehicle.Model == "" && vehicle.Year == 0) {
		return
	}
	prompt.WriteString("## Vehicle\n\n")
	if vehicle.Make != "" {
		prompt.WriteString(fmt.Sprintf("- Make: %s\n", vehicle.Make))
	}
	if vehicle.Model != "" {
		prompt.WriteString(fmt.Sprintf("- Model: %s\n", vehicle.Model))
	}
	if vehicle.Year != 0 {
		prompt.WriteString(fmt.Sprintf("- Year: %d\n", vehicle.Year))
	}
	prompt.WriteString("\n")
}

// writeHistory embeds the conversation verbatim. Paraphrasing here would let
// the model reason over facts the driver never stated.
func writeHistory(prompt *strings.Builder, history []models.Message) {
	if len(history) == 0 {
		return
	}
	prompt.WriteString("## Conversation\n\n")
	for _, msg := range history {
		role := "driver"
		switch msg.Sender {
		case models.SenderAssistant:
			role = "assistant"
		case models.SenderSystem:
			role = "system"
		}
		prompt.WriteString(fmt.Sprintf("%s: %s\n", role, msg.Text))
	}
	prompt.WriteString("\n")
}
