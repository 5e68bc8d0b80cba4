// Package models contains domain models for notegraph.
package models

// Document is a single note as supplied by the document store.
// Content may be truncated to the vectorization sample size; ID is the
// vault-relative path and is stable across runs.
type Document struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"wordCount"`
}

// GraphNode is one document in the rendered graph.
type GraphNode struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Cluster      int    `json:"cluster"`
	ClusterLabel string `json:"clusterLabel"`
	Size         int    `json:"size"`
	Color        string `json:"color"`
}

// GraphEdge connects two documents whose similarity cleared the threshold.
type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	Type   string  `json:"type"`
}

// ClusterInfo describes one cluster in the build response, after
// customization precedence has been applied.
type ClusterInfo struct {
	ID        int      `json:"id"`
	Label     string   `json:"label"`
	Color     string   `json:"color"`
	NoteCount int      `json:"noteCount"`
	Keywords  []string `json:"keywords"`
}

// GraphData is the full build response.
type GraphData struct {
	Nodes      []GraphNode   `json:"nodes"`
	Edges      []GraphEdge   `json:"edges"`
	Clusters   []ClusterInfo `json:"clusters"`
	TotalNotes int           `json:"totalNotes"`
}

// ClusterLabel is an AI-derived label plus keyword set for one cluster.
type ClusterLabel struct {
	Label    string   `json:"label"`
	Keywords []string `json:"keywords"`
}

// Customization is a user-supplied cosmetic override for a cluster.
// Nil fields mean "unset, fall back to the AI-derived value"; a non-nil
// empty Keywords slice is an explicit user choice and must round-trip.
type Customization struct {
	Label    *string   `json:"label,omitempty"`
	Color    *string   `json:"color,omitempty"`
	Keywords *[]string `json:"keywords,omitempty"`
}

// NoteOverride pins a document to a cluster regardless of AI assignment.
type NoteOverride struct {
	NotePath  string `json:"notePath"`
	ClusterID int    `json:"clusterId"`
}
