// ABOUTME: Agent identifiers and profiles for the router and the three specialists
// ABOUTME: Profiles carry display names, emoji markers, topical keywords and system prompts

package agent

import "fmt"

// ID identifies one of the known agents.
type ID string

const (
	Router        ID = "router"
	DigitalMentor ID = "digital-mentor"
	FinanceGuide  ID = "finance-guide"
	HealthCoach   ID = "health-coach"
)

// Profile describes how an agent presents itself and what it covers.
type Profile struct {
	ID       ID
	Name     string
	Emoji    string
	Keywords []string
	// Domain is the assessment domain a specialist reads from; empty for the router.
	Domain       string
	SystemPrompt string
}

// IsSpecialist reports whether the profile belongs to a domain specialist.
func (p Profile) IsSpecialist() bool {
	return p.ID != Router
}

var profiles = map[ID]Profile{
	Router: {
		ID:    Router,
		Name:  "Mentor Router",
		Emoji: "🧭",
		SystemPrompt: "You are the Mentor Router, a friendly generalist mentor. " +
			"Answer general questions yourself. When a question clearly belongs to a specialist, " +
			"say \"I'm connecting you with our <specialist name> <emoji> specialist\" using one of: " +
			"Digital Mentor 🖥️ (technology, email, computers), Finance Guide 💰 (money, budgeting, banking), " +
			"Health Coach 🏥 (health, NHS services, doctors).",
	},
	DigitalMentor: {
		ID:       DigitalMentor,
		Name:     "Digital Mentor",
		Emoji:    "🖥️",
		Keywords: []string{"technology", "digital", "email", "computer"},
		Domain:   "digital",
		SystemPrompt: "You are the Digital Mentor, a patient guide to everyday technology. " +
			"Explain digital skills such as email, online safety and using a computer in plain steps.",
	},
	FinanceGuide: {
		ID:       FinanceGuide,
		Name:     "Finance Guide",
		Emoji:    "💰",
		Keywords: []string{"money", "financial", "budget", "bank"},
		Domain:   "finance",
		SystemPrompt: "You are the Finance Guide, a practical money mentor. " +
			"Help with budgeting, banking and financial confidence. Do not give regulated investment advice.",
	},
	HealthCoach: {
		ID:       HealthCoach,
		Name:     "Health Coach",
		Emoji:    "🏥",
		Keywords: []string{"health", "nhs", "medical", "doctor"},
		Domain:   "health",
		SystemPrompt: "You are the Health Coach, a supportive wellbeing mentor. " +
			"Help people navigate health services and healthy habits. Never diagnose; suggest a doctor when appropriate.",
	},
}

// specialistOrder is the fixed evaluation order used wherever specialists compete.
var specialistOrder = []ID{DigitalMentor, FinanceGuide, HealthCoach}

// Lookup returns the profile for id.
func Lookup(id ID) (Profile, bool) {
	p, ok := profiles[id]
	return p, ok
}

// MustLookup returns the profile for id and panics if it is unknown.
func MustLookup(id ID) Profile {
	p, ok := profiles[id]
	if !ok {
		panic(fmt.Sprintf("agent: unknown id %q", id))
	}
	return p
}

// Parse validates s as an agent identifier.
func Parse(s string) (ID, error) {
	id := ID(s)
	if _, ok := profiles[id]; !ok {
		return "", fmt.Errorf("unknown agent %q", s)
	}
	return id, nil
}

// Specialists returns the specialist profiles in evaluation order
// (digital, finance, health).
func Specialists() []Profile {
	out := make([]Profile, 0, len(specialistOrder))
	for _, id := range specialistOrder {
		out = append(out, profiles[id])
	}
	return out
}

// ForDomain returns the specialist covering an assessment domain.
func ForDomain(domain string) (Profile, bool) {
	for _, id := range specialistOrder {
		if p := profiles[id]; p.Domain == domain {
			return p, true
		}
	}
	return Profile{}, false
}

// Names returns all known identifiers, router first.
func Names() []string {
	out := []string{string(Router)}
	for _, id := range specialistOrder {
		out = append(out, string(id))
	}
	return out
}
