package composer

import (
	"strings"
	"testing"

	"sitefoundry.io/foreman/internal/domain"
)

func TestComposeMaterialUsage(t *testing.T) {
	t.Parallel()

	got := Compose(domain.ActivityEvent{
		EventID:    "ev-1",
		Category:   domain.CategoryMaterial,
		Action:     domain.ActionUsed,
		ActorName:  "Ravi Kumar",
		TargetName: "Cement OPC 53",
		ClientID:   "c1",
		ProjectID:  "p1",
		Quantity:   12.5,
		Unit:       "bags",
	})

	if got.Title != "🧱 Material Activity" {
		t.Fatalf("Title = %q", got.Title)
	}
	want := `Ravi Kumar used "Cement OPC 53" (12.5 bags)`
	if got.Body != want {
		t.Fatalf("Body = %q, want %q", got.Body, want)
	}
	if got.Data["projectId"] != "p1" || got.Data["category"] != "material" {
		t.Fatalf("Data = %v", got.Data)
	}
}

func TestComposeAppendsMessageOnOwnLine(t *testing.T) {
	t.Parallel()

	got := Compose(domain.ActivityEvent{
		Category:   domain.CategoryProject,
		Action:     domain.ActionCompleted,
		ActorName:  "Site Office",
		TargetName: "Tower B",
		Message:    "Handover scheduled for Friday.",
	})

	lines := strings.Split(got.Body, "\n")
	if len(lines) != 2 {
		t.Fatalf("Body = %q, want two lines", got.Body)
	}
	if lines[1] != "Handover scheduled for Friday." {
		t.Fatalf("second line = %q", lines[1])
	}
}

func TestComposeUnknownCategoryFallsBackToGeneric(t *testing.T) {
	t.Parallel()

	got := Compose(domain.ActivityEvent{
		Category:  domain.Category("weather"),
		Action:    domain.ActionUpdated,
		ActorName: "System",
	})
	if got.Title != "🔔 Notification" {
		t.Fatalf("Title = %q, want generic template", got.Title)
	}
}

func TestComposeMissingActorAndTarget(t *testing.T) {
	t.Parallel()

	got := Compose(domain.ActivityEvent{
		Category: domain.CategoryStaff,
		Action:   domain.ActionAssigned,
	})
	if got.Body != "Someone assigned" {
		t.Fatalf("Body = %q", got.Body)
	}
}

func TestComposeCallerDataWinsOverDerived(t *testing.T) {
	t.Parallel()

	got := Compose(domain.ActivityEvent{
		Category: domain.CategoryBooking,
		Action:   domain.ActionCreated,
		ClientID: "c1",
		Data:     map[string]string{"clientId": "override", "screen": "bookings"},
	})
	if got.Data["clientId"] != "override" {
		t.Fatalf("Data[clientId] = %q, want caller override", got.Data["clientId"])
	}
	if got.Data["screen"] != "bookings" {
		t.Fatalf("Data[screen] = %q", got.Data["screen"])
	}
}

func TestComposeIsPure(t *testing.T) {
	t.Parallel()

	event := domain.ActivityEvent{
		Category:   domain.CategoryLabor,
		Action:     domain.ActionUpdated,
		ActorName:  "Anita",
		TargetName: "Masonry crew",
	}
	a := Compose(event)
	b := Compose(event)
	if a.Title != b.Title || a.Body != b.Body {
		t.Fatalf("Compose not deterministic: %+v vs %+v", a, b)
	}
}
