package graph

// palette is the default cluster color cycle; customization overrides it.
var palette = []string{
	"#8b5cf6", // purple
	"#3b82f6", // blue
	"#22c55e", // green
	"#f59e0b", // amber
	"#ef4444", // red
	"#ec4899", // pink
	"#06b6d4", // cyan
	"#84cc16", // lime
	"#f97316", // orange
	"#6366f1", // indigo
	"#14b8a6", // teal
	"#a855f7", // violet
}

// PaletteColor returns the default color for a cluster id.
func PaletteColor(clusterID int) string {
	if clusterID < 0 {
		clusterID = -clusterID
	}
	return palette[clusterID%len(palette)]
}
