package themes

// Theme is a named bundle of visual and audio defaults selectable per
// room. BalloonPalette holds gradient stop pairs consumed by the
// display layer.
type Theme struct {
	Id             string      `json:"id"`
	Name           string      `json:"name"`
	Primary        string      `json:"primary"`
	Secondary      string      `json:"secondary"`
	Background     string      `json:"background"`
	Accent         string      `json:"accent"`
	BalloonPalette [][2]string `json:"balloon_palette"`
	BackgroundImg  string      `json:"background_img,omitempty"`
	DefaultMusic   string      `json:"default_music,omitempty"`
	IsDark         bool        `json:"is_dark"`
}

// Catalog is the fixed theme list. The first entry is the default.
var Catalog = []Theme{
	{
		Id:         "cyberpunk",
		Name:       "Cyberpunk Party",
		Primary:    "#f0abfc",
		Secondary:  "#38bdf8",
		Background: "#0f0f12",
		Accent:     "#6366f1",
		BalloonPalette: [][2]string{
			{"from-fuchsia-500", "to-fuchsia-700"},
			{"from-cyan-500", "to-cyan-700"},
			{"from-violet-500", "to-violet-700"},
			{"from-pink-500", "to-pink-700"},
		},
		BackgroundImg: "https://images.unsplash.com/photo-1550745165-9bc0b252726f?q=80&w=2070&auto=format&fit=crop",
		DefaultMusic:  "https://www.youtube.com/watch?v=5qap5aO4i9A",
		IsDark:        true,
	},
	{
		Id:         "princess",
		Name:       "Princess Castle",
		Primary:    "#fbcfe8",
		Secondary:  "#ddd6fe",
		Background: "#fdf2f8",
		Accent:     "#ec4899",
		BalloonPalette: [][2]string{
			{"from-pink-300", "to-pink-400"},
			{"from-purple-300", "to-purple-400"},
			{"from-rose-200", "to-rose-300"},
			{"from-indigo-200", "to-indigo-300"},
		},
		BackgroundImg: "https://images.unsplash.com/photo-1533174072545-7a4b6ad7a6c3?q=80&w=2070&auto=format&fit=crop",
		DefaultMusic:  "https://www.youtube.com/watch?v=z0O6_S9uT8A",
		IsDark:        false,
	},
	{
		Id:         "gold",
		Name:       "Classic Gold",
		Primary:    "#fbbf24",
		Secondary:  "#71717a",
		Background: "#18181b",
		Accent:     "#d4d4d8",
		BalloonPalette: [][2]string{
			{"from-amber-400", "to-amber-600"},
			{"from-yellow-500", "to-yellow-700"},
			{"from-zinc-400", "to-zinc-600"},
			{"from-amber-200", "to-amber-400"},
		},
		BackgroundImg: "https://images.unsplash.com/photo-1492684223066-81342ee5ff30?q=80&w=2070&auto=format&fit=crop",
		DefaultMusic:  "https://www.youtube.com/watch?v=HMnx22Tz20o",
		IsDark:        true,
	},
}

// DefaultId returns the id of the catalog's first entry.
func DefaultId() string {
	return Catalog[0].Id
}

// Lookup returns the theme for id. An empty or unrecognized id falls
// back to the catalog's first entry; an unknown theme is never an
// error.
func Lookup(id string) Theme {
	for _, t := range Catalog {
		if t.Id == id {
			return t
		}
	}
	return Catalog[0]
}

// Valid reports whether id names a catalog entry.
func Valid(id string) bool {
	for _, t := range Catalog {
		if t.Id == id {
			return true
		}
	}
	return false
}
