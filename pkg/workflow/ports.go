package workflow

// PortType classifies the data carried across an edge.
type PortType string

const (
	PortImage      PortType = "image"
	PortImageBatch PortType = "image_batch"
	PortVideo      PortType = "video"
	PortText       PortType = "text"
	PortAnyMedia   PortType = "any_media"
)

// Port is a named, typed slot on a node. Required applies to input ports only.
type Port struct {
	Name     string   `json:"name"`
	Type     PortType `json:"type"`
	Required bool     `json:"required,omitempty"`
}

// Compatible reports whether an output of type out may feed an input of type in.
// Single media types (image, video) widen into any_media. Batches never widen:
// crossing the batch/single boundary requires a pick gate under human
// selection. Text and any_media only feed inputs of their own type.
func Compatible(out, in PortType) bool {
	if out == in {
		return true
	}
	if in == PortAnyMedia {
		return out == PortImage || out == PortVideo
	}
	return false
}
