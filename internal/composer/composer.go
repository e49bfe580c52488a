// Package composer turns domain activity events into push notification
// content. Composition is pure: no I/O, no clock, no logger, so handlers and
// tests can call it with literal fixtures.
package composer

import (
	"fmt"
	"strings"

	"sitefoundry.io/foreman/internal/domain"
)

// Content is the rendered notification payload handed to the dispatcher.
type Content struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// template is one row of the category table.
type template struct {
	icon  string
	title string
}

var templates = map[domain.Category]template{
	domain.CategoryProject:  {icon: "🏗️", title: "Project Update"},
	domain.CategorySection:  {icon: "📐", title: "Section Update"},
	domain.CategoryStaff:    {icon: "👷", title: "Team Update"},
	domain.CategoryMaterial: {icon: "🧱", title: "Material Activity"},
	domain.CategoryLabor:    {icon: "🔨", title: "Labor Update"},
	domain.CategoryUnit:     {icon: "🏠", title: "Unit Update"},
	domain.CategoryBooking:  {icon: "📅", title: "Booking Update"},
	domain.CategoryPayment:  {icon: "💰", title: "Payment Update"},
	domain.CategoryGeneric:  {icon: "🔔", title: "Notification"},
}

var actionVerbs = map[domain.Action]string{
	domain.ActionCreated:   "created",
	domain.ActionUpdated:   "updated",
	domain.ActionDeleted:   "deleted",
	domain.ActionAssigned:  "assigned",
	domain.ActionCompleted: "completed",
	domain.ActionUsed:      "used",
}

// Compose renders title, body and data payload for an activity event.
// Unknown categories fall back to the general template; unknown actions render
// the raw action string.
func Compose(event domain.ActivityEvent) Content {
	tpl, ok := templates[event.Category]
	if !ok {
		tpl = templates[domain.CategoryGeneric]
	}

	verb := actionVerbs[event.Action]
	if verb == "" {
		verb = string(event.Action)
	}

	var b strings.Builder
	b.WriteString(actorName(event))
	b.WriteString(" ")
	b.WriteString(verb)
	if target := targetPhrase(event); target != "" {
		b.WriteString(" ")
		b.WriteString(target)
	}
	if event.Category == domain.CategoryMaterial && event.Quantity > 0 {
		fmt.Fprintf(&b, " (%g %s)", event.Quantity, event.Unit)
	}
	if msg := strings.TrimSpace(event.Message); msg != "" {
		b.WriteString("\n")
		b.WriteString(msg)
	}

	return Content{
		Title: tpl.icon + " " + tpl.title,
		Body:  b.String(),
		Data:  buildData(event),
	}
}

func actorName(event domain.ActivityEvent) string {
	if event.ActorName != "" {
		return event.ActorName
	}
	return "Someone"
}

func targetPhrase(event domain.ActivityEvent) string {
	if event.TargetName == "" {
		return ""
	}
	return fmt.Sprintf("%q", event.TargetName)
}

// buildData carries routing context so the client app can deep-link from the
// notification. Caller-supplied Data keys win over the derived ones.
func buildData(event domain.ActivityEvent) map[string]string {
	data := map[string]string{
		"category": string(event.Category),
		"action":   string(event.Action),
	}
	if event.ClientID != "" {
		data["clientId"] = event.ClientID
	}
	if event.ProjectID != "" {
		data["projectId"] = event.ProjectID
	}
	if event.EventID != "" {
		data["eventId"] = event.EventID
	}
	for k, v := range event.Data {
		data[k] = v
	}
	return data
}
