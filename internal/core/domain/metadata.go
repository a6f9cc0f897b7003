package domain

// Metadata is the AI-generated descriptive metadata for one image.
type Metadata struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Category string   `json:"category"`
}

// WorkItem is the orchestrator's view of one image to process. The payload is
// lazy: bytes are loaded the first time a worker inside the concurrency
// window touches them, so queued items never hold their buffer in memory.
type WorkItem struct {
	ID      string
	Name    string
	MIME    string
	Payload *Payload
}
