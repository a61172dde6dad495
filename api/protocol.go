package api

import "encoding/json"

// Envelope is the frame exchanged with the relay and the design plugin.
// Outbound commands use Type "message"; the plugin answers with the same
// shape and Message.Result (or Message.Error) populated.
type Envelope struct {
	// ID of the frame. Mirrors Message.ID for command frames.
	ID string `json:"id,omitempty"`
	// Type is "join", "message", "broadcast", "system" or "error".
	Type string `json:"type"`
	// Channel the plugin joined.
	Channel string `json:"channel,omitempty"`
	// Message carries the command or its result. System frames send a plain
	// string here, so it stays raw until the type is known.
	Message json.RawMessage `json:"message,omitempty"`
}

// Message is the command payload inside an Envelope.
type Message struct {
	// ID is the correlation id, namespaced by stage ("stage4-nodes-<uuid>").
	ID string `json:"id"`
	// Command is one of the Command constants.
	Command Command `json:"command,omitempty"`
	// Params for the command (optional).
	Params map[string]any `json:"params,omitempty"`
	// Result is set on responses.
	Result json.RawMessage `json:"result,omitempty"`
	// Error is set on failed responses.
	Error string `json:"error,omitempty"`
}

// IsResponse reports whether the message answers a command.
func (m *Message) IsResponse() bool {
	return m.ID != "" && (len(m.Result) > 0 || m.Error != "")
}

// Envelope types.
const (
	TypeJoin      = "join"
	TypeMessage   = "message"
	TypeBroadcast = "broadcast"
	TypeSystem    = "system"
	TypeError     = "error"
)

// Command is a plugin command name.
type Command string

// The fixed command vocabulary understood by the plugin.
const (
	CmdReadStructure        Command = "read_my_design"
	CmdGetStyles            Command = "get_styles"
	CmdGetLocalComponents   Command = "get_local_components"
	CmdGetDocumentInfo      Command = "get_document_info"
	CmdGetAnnotations       Command = "get_annotations"
	CmdScanTextNodes        Command = "scan_text_nodes"
	CmdScanNodesByType      Command = "scan_nodes_by_type"
	CmdGetReactions         Command = "get_reactions"
	CmdGetInstanceOverrides Command = "get_instance_overrides"
	CmdCreateConnections    Command = "create_connections"
	CmdGetSelection         Command = "get_selection"
	CmdGetNodesInfo         Command = "get_nodes_info"
	CmdExportNodeAsImage    Command = "export_node_as_image"
)
