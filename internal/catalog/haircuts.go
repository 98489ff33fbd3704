// Package catalog holds the service catalog. The catalog is static: services
// change rarely enough that a deploy is an acceptable edit path, and booked
// appointments copy the duration anyway.
package catalog

type Haircut struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int    `json:"price_cents"`
}

var haircuts = []Haircut{
	{
		ID:              "classic",
		Name:            "Corte Clássico",
		Description:     "Corte tradicional com acabamento na tesoura e navalha.",
		DurationMinutes: 60,
		PriceCents:      5000,
	},
	{
		ID:              "fade",
		Name:            "Corte Fade",
		Description:     "Fade moderno com transições suaves e acabamento preciso.",
		DurationMinutes: 60,
		PriceCents:      5500,
	},
	{
		ID:              "beard",
		Name:            "Barba Completa",
		Description:     "Design, alinhamento e hidratação completa da barba.",
		DurationMinutes: 45,
		PriceCents:      4000,
	},
	{
		ID:              "combo",
		Name:            "Corte + Barba",
		Description:     "Experiência completa para cabelo e barba com cuidados premium.",
		DurationMinutes: 90,
		PriceCents:      8500,
	},
}

func List() []Haircut {
	out := make([]Haircut, len(haircuts))
	copy(out, haircuts)
	return out
}

func ByID(id string) (Haircut, bool) {
	for _, h := range haircuts {
		if h.ID == id {
			return h, true
		}
	}
	return Haircut{}, false
}
