// Package assistant answers planning questions through a hosted language model,
// personalized with the signed-in user's wedding profile.
package assistant

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MGallo-Code/weddingkityaari/internal/store"
)

// DefaultMode is used when a request names no persona.
const DefaultMode = "wedding_planner"

// Persona is one assistant mode. ID doubles as the chat history mode.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	focus       string
}

// Personas is the fixed catalogue, in display order.
var Personas = []Persona{
	{
		ID: "wedding_planner", Name: "Wedding Planner",
		Description: "End-to-end planning: timelines, checklists, traditions and next steps.",
		focus:       "Guide the couple through every part of planning and suggest the next concrete step.",
	},
	{
		ID: "venue_expert", Name: "Venue & Logistics Expert",
		Description: "Venues, guest logistics, travel and accommodation.",
		focus:       "Focus on venues, capacity, guest travel and day-of logistics.",
	},
	{
		ID: "catering_specialist", Name: "Catering Specialist",
		Description: "Menus, cuisines, dietary needs and caterer selection.",
		focus:       "Focus on menus, regional cuisines, dietary requirements and caterer selection.",
	},
	{
		ID: "design_coordinator", Name: "Design & Decor Coordinator",
		Description: "Themes, colours, florals, lighting and stage design.",
		focus:       "Focus on themes, colour palettes, florals, lighting and decor.",
	},
	{
		ID: "budget_advisor", Name: "Budget Advisor",
		Description: "Budget allocation, cost trade-offs and savings.",
		focus:       "Focus on allocating the budget across categories and finding savings.",
	},
}

// LookupPersona returns the persona for id; ok is false for unknown ids.
func LookupPersona(id string) (Persona, bool) {
	for _, p := range Personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

const basePrompt = "You are WeddingKiTyaari, an expert assistant for wedding planning and Indian wedding traditions."

const rolePrompt = `Your role:
- Give personalized, practical wedding planning advice
- Respect and incorporate Indian wedding traditions and customs
- Offer both budget-friendly and luxury options
- Be warm, concise and culturally sensitive
- Ask clarifying questions when needed`

// SystemPrompt builds the instruction for persona p. u may be nil for anonymous requests.
// now anchors the days-until-wedding countdown.
func SystemPrompt(p Persona, u *store.User, now time.Time) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\nCurrent mode: " + p.Name + ". " + p.focus)

	if u != nil {
		b.WriteString("\n\nUser information:")
		fmt.Fprintf(&b, "\n- Name: %s", u.Name)
		if u.Profile.PartnerName != "" {
			fmt.Fprintf(&b, "\n- Partner: %s", u.Profile.PartnerName)
		}
		if d := u.Profile.WeddingDate; d != nil {
			days := DaysUntil(*d, now)
			if days > 0 {
				fmt.Fprintf(&b, "\n- Wedding date: %s (%d days away)", d.Format("2 January 2006"), days)
			} else {
				fmt.Fprintf(&b, "\n- Wedding date: %s (past date)", d.Format("2 January 2006"))
			}
		}
		if u.Profile.Budget > 0 {
			fmt.Fprintf(&b, "\n- Budget: ₹%s", FormatINR(u.Profile.Budget))
		}
		if u.Profile.Location != "" {
			fmt.Fprintf(&b, "\n- Location: %s", u.Profile.Location)
		}
		fmt.Fprintf(&b, "\nAddress the user as %s and tailor suggestions to the details above.", u.Name)
	}

	b.WriteString("\n\n" + rolePrompt)
	return b.String()
}

// DaysUntil counts calendar days from now to the wedding date, rounding up.
func DaysUntil(wedding, now time.Time) int {
	return int(math.Ceil(wedding.Sub(now).Hours() / 24))
}

// FormatINR groups an amount Indian-style: 1500000 -> "15,00,000".
func FormatINR(amount float64) string {
	n := int64(math.Round(amount))
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	head, tail := s[:len(s)-3], s[len(s)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(groups, ",") + "," + tail
}
