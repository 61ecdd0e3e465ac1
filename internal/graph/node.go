package graph

// Node is either a *Task or a *Resource, tagged on the wire by a "kind"
// discriminator field equal to "task" or "resource".
type Node interface {
	Kind() string
	NodeID() string
}
