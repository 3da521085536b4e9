package service

import "github.com/percept-io/percept/internal/domain/worker"

// SuggestedPrompt is one entry in the starter prompt catalog shown to
// clients before they compose their own.
type SuggestedPrompt struct {
	Domain worker.Domain `json:"domain"`
	Prompt string        `json:"prompt"`
}

// SuggestedPrompts returns the starter catalog in domain order.
func SuggestedPrompts() []SuggestedPrompt {
	return []SuggestedPrompt{
		{Domain: worker.DomainMedical, Prompt: "Classify this chest X-ray for signs of pneumonia"},
		{Domain: worker.DomainMedical, Prompt: "Identify abnormalities in this MRI scan"},
		{Domain: worker.DomainSatellite, Prompt: "Classify the land use shown in this satellite image"},
		{Domain: worker.DomainSatellite, Prompt: "Detect deforestation in this aerial photograph"},
		{Domain: worker.DomainGeneral, Prompt: "What animal is shown in this photo?"},
		{Domain: worker.DomainGeneral, Prompt: "Classify the main object in this image"},
	}
}
