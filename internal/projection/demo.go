package projection

import "github.com/mr1hm/go-citymap/internal/models"

// DemoServices is shown when the hosted store has no services. None of them
// carry coordinates, so they always land on their fallback positions.
func DemoServices() []models.Service {
	return []models.Service{
		{ID: "svc-1", Name: "Aarogya Hospital", Category: "hospital"},
		{ID: "svc-2", Name: "City Care Hospital", Category: "hospital"},
		{ID: "svc-3", Name: "MedPlus Pharmacy", Category: "pharmacy"},
		{ID: "svc-4", Name: "HealthKart Pharmacy", Category: "pharmacy"},
		{ID: "svc-5", Name: "Shelter - Kukatpally", Category: "shelter"},
		{ID: "svc-6", Name: "Shelter - Secunderabad", Category: "shelter"},
		{ID: "svc-7", Name: "Community Center - Begumpet", Category: "community"},
		{ID: "svc-8", Name: "Community Hall - Hitec", Category: "community"},
	}
}
